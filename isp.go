// Package isp is the blocking front end of the PIC32 serial bootloader.
//
// An ISP wraps a bootloader.Session and ticks it until each command is
// answered, runs out of retries or the context ends.
package isp

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/bootloader"
	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/metrics"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// NoResponseError is returned when a command exhausts its retry budget.
type NoResponseError struct {
	Command protocol.Command
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("isp: no response to %s", e.Command)
}

// VerifyError is returned when the device CRC differs from the image CRC.
type VerifyError struct {
	Expected uint16
	Actual   uint16
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("isp: verify failed: image crc 0x%04X, device crc 0x%04X", e.Expected, e.Actual)
}

type ISP struct {
	Port    io.ReadWriter
	Image   *hexfile.Image
	Version protocol.BootInfo

	opts     options
	log      *zap.Logger
	session  *bootloader.Session
	result   *outcome
	fault    error
	progress func(float64)
	percent  float64
}

/*
 * @Description: create an ISP over a byte channel
 * @param port channel to the bootloader, usually a *transport.Serial
 * @param img image used by WriteFile and Verify; nil allocates one with the configured layout
 * @return *ISP
 */
func New(port io.ReadWriter, img *hexfile.Image, opts ...Option) *ISP {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if img == nil {
		img = hexfile.New(o.layout)
	}

	t := &ISP{
		Port:  port,
		Image: img,
		opts:  o,
		log:   o.logger.Named("isp"),
	}
	t.session = bootloader.NewSession(port, img,
		bootloader.WithTickInterval(o.tick),
		bootloader.WithNotifier(t.notifier()),
		bootloader.WithLogger(o.logger),
		bootloader.WithMetrics(o.metrics),
	)
	return t
}

/*
 * @Description: read the bootloader version
 * @receiver t
 * @return protocol.BootInfo
 * @return error
 */
func (t *ISP) ReadBootInfo(ctx context.Context) (protocol.BootInfo, error) {
	body, err := t.command(ctx, protocol.CommandReadBootInfo)
	if err != nil {
		return protocol.BootInfo{}, err
	}
	info, err := protocol.ParseBootInfo(body)
	if err != nil {
		return protocol.BootInfo{}, err
	}
	t.Version = info
	return info, nil
}

/*
 * @Description: erase the application flash
 * @receiver t
 * @return error
 */
func (t *ISP) EraseFlash(ctx context.Context) error {
	_, err := t.command(ctx, protocol.CommandEraseFlash)
	return err
}

/*
 * @Description: open a HEX file without programming it, for Verify
 * @receiver t
 * @param path
 * @return error
 */
func (t *ISP) Load(path string) error {
	return t.Image.Load(path)
}

/*
 * @Description: program a HEX file into flash
 * @receiver t
 * @param path HEX file
 * @param progress percent of image lines sent, may be nil
 * @return error
 */
func (t *ISP) WriteFile(ctx context.Context, path string, progress func(float64)) error {
	if err := t.Load(path); err != nil {
		return err
	}

	t.progress, t.percent = progress, -1
	defer func() { t.progress = nil }()

	if _, err := t.command(ctx, protocol.CommandProgramFlash); err != nil {
		return err
	}
	if progress != nil && t.percent < 100 {
		progress(100)
	}
	return nil
}

/*
 * @Description: compare the device CRC over the image range with the image CRC
 * @receiver t
 * @return hexfile.Checksum checksum of the loaded image
 * @return error *VerifyError on mismatch
 */
func (t *ISP) Verify(ctx context.Context) (hexfile.Checksum, error) {
	if !t.Image.Loaded() {
		return hexfile.Checksum{}, hexfile.ErrNotLoaded
	}
	body, err := t.command(ctx, protocol.CommandReadCrc)
	if err != nil {
		return hexfile.Checksum{}, err
	}
	sum, _ := t.session.LastChecksum()
	crc, err := protocol.ParseCRC(body)
	if err != nil {
		return sum, err
	}
	if crc != sum.CRC {
		return sum, &VerifyError{Expected: sum.CRC, Actual: crc}
	}
	return sum, nil
}

/*
 * @Description: start the application. The bootloader does not answer a
 * jump, so running out of retries counts as success
 * @receiver t
 * @return error
 */
func (t *ISP) Run(ctx context.Context) error {
	_, err := t.command(ctx, protocol.CommandJmpToApp)
	var nr *NoResponseError
	if errors.As(err, &nr) {
		return nil
	}
	return err
}

/*
 * @Description: connect, erase, program and verify, then optionally start the application
 * @receiver t
 * @param path HEX file
 * @param run jump to the application after a successful verify
 * @param progress percent of image lines sent, may be nil
 * @return error
 */
func (t *ISP) Flash(ctx context.Context, path string, run bool, progress func(float64)) error {
	info, err := t.ReadBootInfo(ctx)
	if err != nil {
		return errors.WithMessage(err, "connect")
	}
	t.log.Info("bootloader connected", zap.Stringer("version", info))

	if err := t.EraseFlash(ctx); err != nil {
		return errors.WithMessage(err, "erase")
	}
	if err := t.WriteFile(ctx, path, progress); err != nil {
		return errors.WithMessage(err, "program")
	}
	sum, err := t.Verify(ctx)
	if err != nil {
		return errors.WithMessage(err, "verify")
	}
	t.log.Info("image verified",
		zap.String("start", fmt.Sprintf("0x%08X", sum.StartAddress)),
		zap.Uint32("length", sum.Length),
		zap.String("crc", fmt.Sprintf("0x%04X", sum.CRC)),
	)

	if !run {
		return nil
	}
	if err := t.Run(ctx); err != nil {
		return errors.WithMessage(err, "run")
	}
	return nil
}

// Stats returns the session counters.
func (t *ISP) Stats() metrics.Snapshot {
	return t.session.Stats()
}

// Close releases the image file. The port belongs to the caller.
func (t *ISP) Close() error {
	return t.Image.Close()
}
