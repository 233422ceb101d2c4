package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/tocurd/go-pic32-isp/transport"
)

// PortsCommand lists serial ports.
func PortsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "List serial ports; * marks the one matching --vid/--pid",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return exitError(err)
			}
			ports, err := transport.List()
			if err != nil {
				return exitError(err)
			}
			if len(ports) == 0 {
				fmt.Fprintln(c.App.Writer, "no serial ports found")
				return nil
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tPORT\tUSB ID\tSERIAL\tPRODUCT")
			for _, p := range ports {
				mark, id := "", ""
				if p.IsUSB {
					id = p.VID + ":" + p.PID
					if strings.EqualFold(p.VID, cfg.VID) && strings.EqualFold(p.PID, cfg.PID) {
						mark = "*"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, p.Name, id, p.SerialNumber, p.Product)
			}
			return w.Flush()
		},
	}
}

// InfoCommand reads the bootloader version.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Read the bootloader version",
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			info, err := s.isp.ReadBootInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "bootloader %s on %s\n", info, s.port)
			return nil
		}),
	}
}

// EraseCommand erases the application flash.
func EraseCommand() *cli.Command {
	return &cli.Command{
		Name:  "erase",
		Usage: "Erase the application flash",
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			if err := s.isp.EraseFlash(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "flash erased")
			return nil
		}),
	}
}

// ProgramCommand streams a HEX file without erasing or verifying.
func ProgramCommand() *cli.Command {
	return &cli.Command{
		Name:      "program",
		Usage:     "Program a HEX file (no erase, no verify)",
		ArgsUsage: "<file.hex>",
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			path, err := fileArg(c)
			if err != nil {
				return err
			}
			update, finish := progressBar(c, "programming")
			defer finish()
			if err := s.isp.WriteFile(ctx, path, update); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s programmed\n", path)
			return nil
		}),
	}
}

// VerifyCommand compares the device flash with a HEX file.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Compare the device flash CRC with a HEX file",
		ArgsUsage: "<file.hex>",
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			path, err := fileArg(c)
			if err != nil {
				return err
			}
			if err := s.isp.Load(path); err != nil {
				return err
			}
			sum, err := s.isp.Verify(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "verified 0x%08X+0x%X crc 0x%04X\n", sum.StartAddress, sum.Length, sum.CRC)
			return nil
		}),
	}
}

// RunCommand starts the application.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Jump to the application",
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			if err := s.isp.Run(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "application started")
			return nil
		}),
	}
}

// FlashCommand connects, erases, programs and verifies, then optionally
// starts the application.
func FlashCommand() *cli.Command {
	return &cli.Command{
		Name:      "flash",
		Usage:     "Erase, program and verify a HEX file",
		ArgsUsage: "<file.hex>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "run",
				Usage: "Start the application after a successful verify",
			},
		},
		Action: withSession(func(ctx context.Context, c *cli.Context, s *session) error {
			path, err := fileArg(c)
			if err != nil {
				return err
			}
			update, finish := progressBar(c, "programming")
			err = s.isp.Flash(ctx, path, c.Bool("run"), update)
			finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s flashed and verified\n", path)
			return nil
		}),
	}
}

// VersionCommand prints the build version.
func VersionCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "pic32isp %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("%s: HEX file required", c.Command.Name)
	}
	return c.Args().First(), nil
}
