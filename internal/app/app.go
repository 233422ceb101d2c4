// Package app provides the pic32isp command line.
package app

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	ExitFailure    = 1
	ExitNoResponse = 2
	ExitVerify     = 3
)

// Global flags. Values given here override the config file.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file",
		EnvVars: []string{"PIC32ISP_CONFIG"},
	}

	PortFlag = &cli.StringFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "Serial port; \"sim\" uses the built-in emulator. Empty searches by --vid/--pid",
		EnvVars: []string{"PIC32ISP_PORT"},
	}

	BaudFlag = &cli.IntFlag{
		Name:  "baud",
		Usage: "UART speed",
	}

	VIDFlag = &cli.StringFlag{
		Name:  "vid",
		Usage: "USB vendor id used to find the port",
	}

	PIDFlag = &cli.StringFlag{
		Name:  "pid",
		Usage: "USB product id used to find the port",
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: console, json",
	}

	TraceFlag = &cli.StringFlag{
		Name:  "trace",
		Usage: "Record the raw serial traffic to this file",
	}

	ResetFlag = &cli.StringFlag{
		Name:  "reset",
		Usage: "Restart the target after opening the port: none, reset, activation",
	}

	StatsFlag = &cli.BoolFlag{
		Name:  "stats",
		Usage: "Print session counters when the command ends",
	}
)

// GlobalFlags returns the flags shared by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		PortFlag,
		BaudFlag,
		VIDFlag,
		PIDFlag,
		LogLevelFlag,
		LogFormatFlag,
		TraceFlag,
		ResetFlag,
		StatsFlag,
	}
}

// New returns the pic32isp application. The caller sets ExitErrHandler.
func New(version, commit string) *cli.App {
	return &cli.App{
		Name:    "pic32isp",
		Usage:   "Program PIC32 microcontrollers through the serial bootloader",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			PortsCommand(),
			InfoCommand(),
			EraseCommand(),
			ProgramCommand(),
			VerifyCommand(),
			RunCommand(),
			FlashCommand(),
			InspectCommand(),
			TraceCommand(),
			VersionCommand(version, commit),
		},
	}
}
