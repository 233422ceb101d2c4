// Package main provides the pic32isp CLI entrypoint.
//
// Usage:
//
//	pic32isp [global options] <command> [options] [file]
//
// Exit codes:
//   - 0: success
//   - 1: failure
//   - 2: the bootloader did not answer
//   - 3: verify mismatch
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tocurd/go-pic32-isp/internal/app"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	a := app.New(version, commit)
	a.ExitErrHandler = exitErrHandler

	if err := a.Run(os.Args); err != nil {
		os.Exit(app.ExitFailure)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(app.ExitFailure)
}
