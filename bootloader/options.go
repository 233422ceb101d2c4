package bootloader

import (
	"time"

	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/metrics"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// Config holds the session configuration.
type Config struct {
	// TickInterval is the period of the tick clock. Retry delays are
	// converted to ticks with it.
	TickInterval time.Duration

	// ReceiveCapacity bounds the decoder buffer (payload plus CRC).
	ReceiveCapacity int

	// ReadSize is the largest read issued per tick.
	ReadSize int

	// Notifier receives responses, no-responses, progress and errors.
	Notifier Notifier

	// Logger is used for frame level debug logging.
	Logger *zap.Logger

	// Metrics counts transmissions and responses (optional).
	Metrics *metrics.Collector
}

func defaultConfig() Config {
	return Config{
		TickInterval:    time.Millisecond,
		ReceiveCapacity: protocol.DefaultCapacity,
		ReadSize:        245,
		Notifier:        NotifierFuncs{},
		Logger:          zap.NewNop(),
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithTickInterval sets the tick period. Values <= 0 are ignored.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.TickInterval = d
		}
	}
}

// WithReceiveCapacity sets the decoder buffer size.
func WithReceiveCapacity(n int) Option {
	return func(c *Config) {
		if n > protocol.CRCSize {
			c.ReceiveCapacity = n
		}
	}
}

// WithNotifier sets the event sink.
//
// Example:
//
//	s := bootloader.NewSession(port, img, bootloader.WithNotifier(bootloader.NotifierFuncs{
//	    Response: func(cmd protocol.Command, payload []byte) { ... },
//	}))
func WithNotifier(n Notifier) Option {
	return func(c *Config) {
		if n != nil {
			c.Notifier = n
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l == nil {
			l = zap.NewNop()
		}
		c.Logger = l
	}
}

// WithMetrics attaches a collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
