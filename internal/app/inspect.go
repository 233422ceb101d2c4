package app

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/protocol"
	"github.com/tocurd/go-pic32-isp/trace"
)

// InspectCommand checks a HEX file offline: strict parse, segment map and
// the checksum a verify would send.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarise a HEX file and compute its verify checksum",
		ArgsUsage: "<file.hex>",
		Action: func(c *cli.Context) error {
			path, err := fileArg(c)
			if err != nil {
				return exitError(err)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return exitError(err)
			}
			if err := inspectImage(c.App.Writer, path, cfg.Layout); err != nil {
				return exitError(err)
			}
			return nil
		},
	}
}

func inspectImage(w io.Writer, path string, layout hexfile.Layout) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	summary, err := hexfile.Inspect(f, layout)
	if err != nil {
		return errors.WithMessage(err, path)
	}

	fmt.Fprintf(w, "%s: %d segments, %d bytes, %d programmable\n",
		path, len(summary.Segments), summary.Bytes, summary.Programmable)
	for _, seg := range summary.Segments {
		note := ""
		if seg.Protected {
			note = " (boot sector, skipped)"
		}
		fmt.Fprintf(w, "  0x%08X  %6d bytes%s\n", seg.Address, seg.Size, note)
	}
	if summary.HasStart {
		fmt.Fprintf(w, "  start address 0x%08X\n", summary.StartAddress)
	}

	img := hexfile.New(layout)
	if err := img.Load(path); err != nil {
		return err
	}
	defer img.Close()
	sum, err := img.Verify()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  verify range 0x%08X+0x%X crc 0x%04X\n", sum.StartAddress, sum.Length, sum.CRC)
	return nil
}

// TraceCommand prints a capture written with --trace, decoding the frames
// of each direction.
func TraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Dump a capture written with --trace",
		ArgsUsage: "<capture>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("trace: capture file required", ExitFailure)
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return exitError(err)
			}
			defer f.Close()
			if err := dumpTrace(c.App.Writer, f); err != nil {
				return exitError(err)
			}
			return nil
		},
	}
}

func dumpTrace(w io.Writer, r io.Reader) error {
	// Requests are not bound by the device receive buffer.
	decoders := map[trace.Direction]*protocol.Decoder{
		trace.DirTx: protocol.NewDecoder(4096),
		trace.DirRx: protocol.NewDecoder(protocol.DefaultCapacity),
	}

	reader := trace.NewReader(r)
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%6d %s %s % X\n", e.Seq, e.Time.Format("15:04:05.000000"), e.Dir, e.Data)

		dec, ok := decoders[e.Dir]
		if !ok {
			continue
		}
		frames, derr := dec.Decode(e.Data)
		for _, f := range frames {
			fmt.Fprintf(w, "       %s frame %s % X\n", e.Dir, protocol.Command(f[0]), f[1:])
		}
		if derr != nil {
			fmt.Fprintf(w, "       %s error: %v\n", e.Dir, derr)
		}
	}
}
