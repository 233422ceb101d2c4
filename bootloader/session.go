// Package bootloader drives the PIC32 serial bootloader from the host side.
//
// A Session owns one outstanding command at a time. It is advanced by Tick,
// which performs one non-blocking read of the byte channel, dispatches every
// validated frame, then gives the retry scheduler one step. Nothing in the
// package blocks on I/O; Run supplies a ticker for callers that want a loop.
//
// A Session is not safe for concurrent use.
package bootloader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/metrics"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// Fixed policy for JmpToApp: the application starts instead of answering.
const (
	JumpRetries = 1
	JumpDelay   = 10 * time.Millisecond
)

// Image is what a Session needs from a firmware image. *hexfile.Image
// implements it.
type Image interface {
	RecordSource
	ResetCursor() error
	Verify() (hexfile.Checksum, error)
	Progress() (current, total int)
}

// Session is the command/response state machine of one bootloader link.
type Session struct {
	ch    io.ReadWriter
	img   Image
	cfg   Config
	log   *zap.Logger
	dec   *protocol.Decoder
	sched Scheduler

	now         uint64
	rbuf        []byte
	last        protocol.Command
	outstanding bool
	retries     int
	delay       uint64

	transfer *batches
	checksum hexfile.Checksum
	verified bool
	reported [2]int
}

// NewSession creates a session talking over ch. img may be nil when only
// ReadBootInfo, EraseFlash and JmpToApp are used.
func NewSession(ch io.ReadWriter, img Image, opts ...Option) *Session {
	if ch == nil {
		panic("channel cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		ch:       ch,
		img:      img,
		cfg:      cfg,
		log:      cfg.Logger.Named("session"),
		dec:      protocol.NewDecoder(cfg.ReceiveCapacity),
		rbuf:     make([]byte, cfg.ReadSize),
		reported: [2]int{-1, -1},
	}
}

// Send builds the payload for cmd and hands its frame to the retry
// scheduler, replacing whatever command was outstanding. The first copy is
// written by the next Tick. JmpToApp ignores maxRetries and delay.
//
// ProgramFlash rewinds the image and starts a streaming transfer: every
// acknowledged round is followed by the next one until the image is
// drained. ReadCrc runs a verification pass over the image and is rejected
// with ErrTransferInProgress while a transfer is streaming.
func (s *Session) Send(cmd protocol.Command, maxRetries int, delay time.Duration) error {
	var (
		payload  []byte
		transfer *batches
	)

	switch cmd {
	case protocol.CommandReadBootInfo, protocol.CommandEraseFlash:
		payload = protocol.BuildCommand(cmd)

	case protocol.CommandJmpToApp:
		payload = protocol.BuildCommand(cmd)
		maxRetries, delay = JumpRetries, JumpDelay

	case protocol.CommandProgramFlash:
		if s.img == nil {
			return ErrNoImage
		}
		if err := s.img.ResetCursor(); err != nil {
			return err
		}
		transfer = newBatches(s.img)
		records, _, err := transfer.Next()
		if err != nil {
			return err
		}
		payload = protocol.BuildProgramFlash(records)
		s.cfg.Metrics.IncProgramRound(len(records))

	case protocol.CommandReadCrc:
		if s.Streaming() {
			s.cfg.Metrics.IncRejected()
			s.log.Warn("read crc rejected during program transfer")
			return ErrTransferInProgress
		}
		if s.img == nil {
			return ErrNoImage
		}
		sum, err := s.img.Verify()
		if err != nil {
			return err
		}
		s.checksum, s.verified = sum, true
		payload = protocol.BuildReadCrc(sum.StartAddress, sum.Length, sum.CRC)

	default:
		return errors.Wrapf(ErrUnknownCommand, "0x%02X", byte(cmd))
	}

	s.transfer = transfer
	s.last = cmd
	s.retries = maxRetries
	s.delay = s.ticks(delay)
	s.start(payload)
	return nil
}

func (s *Session) start(payload []byte) {
	frame := protocol.Encode(payload)
	s.outstanding = true
	s.sched.Start(frame, s.retries, s.delay)
	s.cfg.Metrics.IncCommandSent(s.last.String())

	s.log.Debug("command queued",
		zap.Stringer("command", s.last),
		zap.Int("payload", len(payload)),
		zap.Int("retries", s.retries),
		zap.Uint64("delay_ticks", s.delay),
	)
}

// ticks converts a retry delay to tick counts, rounding up.
func (s *Session) ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	iv := s.cfg.TickInterval
	return uint64((d + iv - 1) / iv)
}

// Tick runs one step: read once and dispatch any validated frames, then
// advance the retry scheduler once. Only channel errors are returned.
func (s *Session) Tick() error {
	s.now++

	n, err := s.ch.Read(s.rbuf)
	if err != nil && err != io.EOF {
		return errors.WithMessage(err, "bootloader: read")
	}
	if n > 0 {
		s.cfg.Metrics.AddBytesRead(n)
		frames, derr := s.dec.Decode(s.rbuf[:n])
		if derr != nil {
			s.log.Warn("receive frame dropped", zap.Error(derr))
			s.cfg.Notifier.OnError(s.last, derr)
		}
		for _, f := range frames {
			s.onValidFrame(f)
		}
	}

	ev, err := s.sched.Tick(s.now, s.ch)
	if err != nil {
		return errors.WithMessage(err, "bootloader: write")
	}
	switch ev {
	case EventSent:
		attempt := s.sched.Attempts()
		s.cfg.Metrics.IncTransmission(attempt > 1, len(s.sched.Frame()))
		if ce := s.log.Check(zap.DebugLevel, "frame sent"); ce != nil {
			ce.Write(
				zap.Stringer("command", s.last),
				zap.Int("attempt", attempt),
				zap.String("frame", fmt.Sprintf("% X", s.sched.Frame())),
			)
		}
	case EventNoResponse:
		s.onNoResponse()
	}

	s.reportProgress()
	return nil
}

// Run ticks the session at the configured interval until ctx is done or
// the channel fails.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) onValidFrame(payload []byte) {
	cmd := protocol.Command(payload[0])
	if !s.outstanding || cmd != s.last {
		s.cfg.Metrics.IncStaleFrame()
		s.log.Debug("stale frame ignored",
			zap.Stringer("command", cmd),
			zap.Stringer("last", s.last),
			zap.Bool("outstanding", s.outstanding),
		)
		return
	}

	s.sched.Stop()

	if cmd == protocol.CommandProgramFlash {
		s.nextRound(payload)
		return
	}
	s.finish(cmd, payload)
}

// nextRound queues the next batch of an acknowledged transfer, or completes
// the transfer when the image is drained.
func (s *Session) nextRound(payload []byte) {
	if s.transfer == nil {
		s.finish(protocol.CommandProgramFlash, payload)
		return
	}

	records, _, err := s.transfer.Next()
	switch {
	case errors.Is(err, hexfile.ErrNoRecord):
		s.log.Info("program transfer complete", zap.Int("rounds", s.transfer.Rounds()))
		s.finish(protocol.CommandProgramFlash, payload)
	case err != nil:
		s.outstanding = false
		s.transfer = nil
		s.log.Error("program transfer aborted", zap.Error(err))
		s.cfg.Notifier.OnError(protocol.CommandProgramFlash, err)
	default:
		s.cfg.Metrics.IncProgramRound(len(records))
		s.start(protocol.BuildProgramFlash(records))
	}
}

func (s *Session) finish(cmd protocol.Command, payload []byte) {
	s.outstanding = false
	s.transfer = nil
	s.cfg.Metrics.IncResponse()
	s.log.Debug("response", zap.Stringer("command", cmd), zap.Int("payload", len(payload)-1))
	s.cfg.Notifier.OnResponse(cmd, payload[1:])
}

func (s *Session) onNoResponse() {
	s.outstanding = false
	s.transfer = nil
	s.cfg.Metrics.IncNoResponse()
	s.log.Warn("no response", zap.Stringer("command", s.last), zap.Int("retries", s.retries))
	s.cfg.Notifier.OnNoResponse(s.last)
}

func (s *Session) reportProgress() {
	if s.last == 0 {
		return
	}
	cur, total := s.Progress()
	if cur == s.reported[0] && total == s.reported[1] {
		return
	}
	s.reported = [2]int{cur, total}
	s.cfg.Notifier.OnProgress(cur, total)
}

// Progress returns (lines consumed, total lines) while the last command is
// ProgramFlash and (transmissions, retry budget) otherwise.
func (s *Session) Progress() (current, total int) {
	if s.last == protocol.CommandProgramFlash && s.img != nil {
		return s.img.Progress()
	}
	total, remaining := s.sched.Retries()
	return total - remaining, total
}

// Cancel abandons the outstanding command without notifying.
func (s *Session) Cancel() {
	s.sched.Stop()
	s.outstanding = false
	s.transfer = nil
}

// Busy reports whether a command is waiting for its response.
func (s *Session) Busy() bool {
	return s.outstanding
}

// Streaming reports whether a ProgramFlash transfer is in flight.
func (s *Session) Streaming() bool {
	return s.outstanding && s.transfer != nil
}

// LastCommand returns the most recently sent command, or 0 before any Send.
func (s *Session) LastCommand() protocol.Command {
	return s.last
}

// LastChecksum returns the local checksum embedded in the last ReadCrc.
func (s *Session) LastChecksum() (hexfile.Checksum, bool) {
	return s.checksum, s.verified
}

// Ticks returns the tick clock.
func (s *Session) Ticks() uint64 {
	return s.now
}

// Stats returns a metrics snapshot with the decoder counters absorbed.
func (s *Session) Stats() metrics.Snapshot {
	c := s.dec.Counters()
	s.cfg.Metrics.AbsorbDecoderStats(metrics.DecoderStats{
		Frames:    c.Frames,
		CRCErrors: c.CRCErrors,
		Overflows: c.Overflows,
	})
	return s.cfg.Metrics.Snapshot()
}
