// Package config holds the pic32isp configuration file.
//
// All values are optional and act as defaults for the command line; flags
// always override config values.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/protocol"
	"github.com/tocurd/go-pic32-isp/transport"
)

// Reset modes applied to the port before the first command.
const (
	ResetNone       = "none"
	ResetPulse      = "reset"
	ResetActivation = "activation"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config represents a pic32isp.yaml configuration file.
type Config struct {
	Port         string         `yaml:"port"`
	Baud         int            `yaml:"baud"`
	VID          string         `yaml:"vid"`
	PID          string         `yaml:"pid"`
	TickInterval Duration       `yaml:"tick_interval"`
	Reset        ResetConfig    `yaml:"reset"`
	Layout       hexfile.Layout `yaml:"layout"`
	Policies     Policies       `yaml:"policies"`
	Log          LogConfig      `yaml:"log"`
	Trace        string         `yaml:"trace"`
}

// ResetConfig selects how the target is restarted after the port opens.
type ResetConfig struct {
	Mode string   `yaml:"mode"`
	Hold Duration `yaml:"hold"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Policy is the retry budget of one command.
type Policy struct {
	Retries int      `yaml:"retries"`
	Delay   Duration `yaml:"delay"`
}

// Policies holds the retry budget per command. JmpToApp has a fixed policy.
type Policies struct {
	BootInfo Policy `yaml:"boot_info"`
	Erase    Policy `yaml:"erase"`
	Program  Policy `yaml:"program"`
	ReadCrc  Policy `yaml:"read_crc"`
}

// For returns the policy of cmd. ok is false for commands without a
// configurable policy.
func (p Policies) For(cmd protocol.Command) (policy Policy, ok bool) {
	switch cmd {
	case protocol.CommandReadBootInfo:
		return p.BootInfo, true
	case protocol.CommandEraseFlash:
		return p.Erase, true
	case protocol.CommandProgramFlash:
		return p.Program, true
	case protocol.CommandReadCrc:
		return p.ReadCrc, true
	}
	return Policy{}, false
}

// Duration wraps time.Duration for YAML string parsing (e.g. "200ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "200ms" or "1m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration of the reference PIC32MX boards.
func Default() *Config {
	return &Config{
		Baud:         transport.DefaultBaudRate,
		VID:          transport.DefaultVID,
		PID:          transport.DefaultPID,
		TickInterval: Duration{time.Millisecond},
		Reset:        ResetConfig{Mode: ResetNone, Hold: Duration{50 * time.Millisecond}},
		Layout:       hexfile.PIC32MX,
		Policies: Policies{
			BootInfo: Policy{Retries: 50, Delay: Duration{200 * time.Millisecond}},
			Erase:    Policy{Retries: 3, Delay: Duration{5 * time.Second}},
			Program:  Policy{Retries: 3, Delay: Duration{5 * time.Second}},
			ReadCrc:  Policy{Retries: 3, Delay: Duration{5 * time.Second}},
		},
		Log: LogConfig{Level: "info", Format: FormatConsole},
	}
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return errors.Errorf("baud must be positive, got %d", c.Baud)
	}
	if c.TickInterval.Duration <= 0 {
		return errors.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	switch c.Reset.Mode {
	case ResetNone, ResetPulse, ResetActivation:
	default:
		return errors.Errorf("reset.mode must be one of none, reset, activation, got %q", c.Reset.Mode)
	}
	if c.Reset.Hold.Duration < 0 {
		return errors.Errorf("reset.hold must not be negative, got %s", c.Reset.Hold)
	}
	switch c.Log.Format {
	case FormatJSON, FormatConsole:
	default:
		return errors.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Layout.FlashSize < 4 {
		return errors.Errorf("layout.flash_size too small: %d", c.Layout.FlashSize)
	}
	if c.Layout.BootSectorBegin != 0 && c.Layout.BootSectorBegin <= c.Layout.ApplicationBase {
		return errors.Errorf("layout.boot_sector_begin 0x%08X not above application_base 0x%08X",
			c.Layout.BootSectorBegin, c.Layout.ApplicationBase)
	}

	for _, cmd := range []protocol.Command{
		protocol.CommandReadBootInfo,
		protocol.CommandEraseFlash,
		protocol.CommandProgramFlash,
		protocol.CommandReadCrc,
	} {
		p, _ := c.Policies.For(cmd)
		if p.Retries < 1 {
			return errors.Errorf("policy %s: retries must be at least 1, got %d", cmd, p.Retries)
		}
		if p.Delay.Duration <= 0 {
			return errors.Errorf("policy %s: delay must be positive, got %s", cmd, p.Delay)
		}
	}
	return nil
}
