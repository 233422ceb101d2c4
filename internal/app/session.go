package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	isp "github.com/tocurd/go-pic32-isp"
	"github.com/tocurd/go-pic32-isp/config"
	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/internal/devicesim"
	"github.com/tocurd/go-pic32-isp/internal/log"
	"github.com/tocurd/go-pic32-isp/metrics"
	"github.com/tocurd/go-pic32-isp/trace"
	"github.com/tocurd/go-pic32-isp/transport"
)

// SimPort selects the in-memory emulator instead of a serial port.
const SimPort = "sim"

// loadConfig reads --config (or the defaults) and applies the global flags
// on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet(PortFlag.Name) {
		cfg.Port = c.String(PortFlag.Name)
	}
	if c.IsSet(BaudFlag.Name) {
		cfg.Baud = c.Int(BaudFlag.Name)
	}
	if c.IsSet(VIDFlag.Name) {
		cfg.VID = c.String(VIDFlag.Name)
	}
	if c.IsSet(PIDFlag.Name) {
		cfg.PID = c.String(PIDFlag.Name)
	}
	if c.IsSet(LogLevelFlag.Name) {
		cfg.Log.Level = c.String(LogLevelFlag.Name)
	}
	if c.IsSet(LogFormatFlag.Name) {
		cfg.Log.Format = c.String(LogFormatFlag.Name)
	}
	if c.IsSet(TraceFlag.Name) {
		cfg.Trace = c.String(TraceFlag.Name)
	}
	if c.IsSet(ResetFlag.Name) {
		cfg.Reset.Mode = c.String(ResetFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is one programming session opened for a command.
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	port    string
	isp     *isp.ISP
	metrics *metrics.Collector
	closers []func() error
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := log.New(c.App.ErrWriter, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: logger}
	ch, err := s.openPort()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			s.close()
			return nil, errors.Wrap(err, "create trace file")
		}
		s.closers = append(s.closers, f.Close)
		rec := trace.NewRecorder(f)
		id = rec.Session()
		ch = trace.NewTap(ch, rec, func(err error) {
			logger.Warn("trace write failed", zap.Error(err))
		})
	}

	s.log = logger.With(zap.String("port", s.port), zap.String("session", id))
	s.metrics = metrics.NewCollector(s.port, id)
	s.isp = isp.New(ch, hexfile.New(cfg.Layout),
		isp.WithTickInterval(cfg.TickInterval.Duration),
		isp.WithPolicies(cfg.Policies),
		isp.WithLogger(s.log),
		isp.WithMetrics(s.metrics),
	)
	s.closers = append(s.closers, s.isp.Close)
	return s, nil
}

func (s *session) openPort() (io.ReadWriter, error) {
	name := s.cfg.Port
	if name == SimPort {
		s.port = SimPort
		return devicesim.New(s.cfg.Layout, s.log), nil
	}
	if name == "" {
		found, err := transport.Find(s.cfg.VID, s.cfg.PID)
		if err != nil {
			return nil, err
		}
		name = found
	}
	s.port = name

	port, err := transport.Open(name, s.cfg.Baud)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, port.Close)

	hold := s.cfg.Reset.Hold.Duration
	switch s.cfg.Reset.Mode {
	case config.ResetPulse:
		err = port.Reset(hold)
	case config.ResetActivation:
		err = port.Activation(hold)
	}
	if err != nil {
		s.close()
		return nil, errors.Wrapf(err, "%s %s", s.cfg.Reset.Mode, name)
	}
	s.log.Debug("port open", zap.String("port", name), zap.Int("baud", s.cfg.Baud))
	return port, nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
	}
	s.closers = nil
	_ = s.log.Sync()
}

// withSession runs fn with an open session and an interrupt aware context,
// then maps its error to an exit code.
func withSession(fn func(ctx context.Context, c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return exitError(err)
		}
		defer s.close()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
		defer stop()

		err = fn(ctx, c, s)
		if c.Bool(StatsFlag.Name) {
			printStats(c.App.Writer, s.isp.Stats())
		}
		if err != nil {
			return exitError(err)
		}
		return nil
	}
}

func exitError(err error) error {
	var (
		nr *isp.NoResponseError
		ve *isp.VerifyError
	)
	switch {
	case errors.As(err, &nr):
		return cli.Exit(err.Error(), ExitNoResponse)
	case errors.As(err, &ve):
		return cli.Exit(err.Error(), ExitVerify)
	}
	return cli.Exit(err.Error(), ExitFailure)
}

// progressBar renders percent progress on the error stream when it is a
// terminal.
func progressBar(c *cli.Context, description string) (update func(float64), finish func()) {
	visible := isTerminal(c.App.ErrWriter)
	opts := []progressbar.Option{
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionSetWriter(c.App.ErrWriter),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
	}
	if visible {
		opts = append(opts, progressbar.OptionOnCompletion(func() { fmt.Fprintln(c.App.ErrWriter) }))
	}
	bar := progressbar.NewOptions(100, opts...)
	update = func(p float64) {
		_ = bar.Set(int(p))
	}
	finish = func() {
		_ = bar.Finish()
	}
	return update, finish
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printStats(w io.Writer, st metrics.Snapshot) {
	fmt.Fprintf(w, "port %s session %s\n", st.Port, st.Session)
	fmt.Fprintf(w, "  commands       %d\n", st.CommandsSent)
	fmt.Fprintf(w, "  transmissions  %d (%d retransmitted)\n", st.Transmissions, st.Retransmits)
	fmt.Fprintf(w, "  responses      %d\n", st.Responses)
	fmt.Fprintf(w, "  no responses   %d\n", st.NoResponses)
	fmt.Fprintf(w, "  program rounds %d (%d records)\n", st.ProgramRounds, st.RecordsStreamed)
	fmt.Fprintf(w, "  frames         %d valid, %d dropped, %d overflows, %d stale\n",
		st.FramesValid, st.FramesDropped, st.Overflows, st.StaleFrames)
	fmt.Fprintf(w, "  bytes          %d written, %d read\n", st.BytesWritten, st.BytesRead)
}
