package isp

import (
	"time"

	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/config"
	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/metrics"
)

type options struct {
	tick     time.Duration
	policies config.Policies
	layout   hexfile.Layout
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func defaultOptions() options {
	def := config.Default()
	return options{
		tick:     def.TickInterval.Duration,
		policies: def.Policies,
		layout:   def.Layout,
		logger:   zap.NewNop(),
	}
}

// Option configures an ISP.
type Option func(*options)

// WithTickInterval sets how often the session is ticked. Values <= 0 are
// ignored.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tick = d
		}
	}
}

// WithPolicies sets the per command retry budgets.
func WithPolicies(p config.Policies) Option {
	return func(o *options) {
		o.policies = p
	}
}

// WithLayout sets the address map used when New allocates the image.
func WithLayout(l hexfile.Layout) Option {
	return func(o *options) {
		o.layout = l
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = zap.NewNop()
		}
		o.logger = l
	}
}

// WithMetrics attaches a collector to the session.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}
