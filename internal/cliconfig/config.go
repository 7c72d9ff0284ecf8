package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/ulogbridge/internal/domain"
)

// Defaults for the link and both sides of a stream.
const (
	DefaultListenAddr   = ":14570"
	DefaultTickInterval = 10 * time.Millisecond
	DefaultStartTimeout = 4 * time.Second
	DefaultLinkRate     = 32 << 10 // bytes per second
	DefaultLinkBurst    = 2 << 10
)

// Mode selects which side of the stream a Config is validated for.
type Mode int

const (
	// ModeSend runs the vehicle side: it serves a log file to a peer.
	ModeSend Mode = iota
	// ModeReceive runs the ground side: it requests a stream and writes it.
	ModeReceive
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// Config holds CLI configuration for ulogbridge.
type Config struct {
	// ListenAddr is the local UDP address peers connect to. The receiver
	// only listens when it is set.
	ListenAddr string
	// PeerAddr is the remote UDP address to connect to. The sender answers
	// whoever connects when it is empty.
	PeerAddr string

	LogFile string
	Follow  bool
	Output  string

	TickInterval time.Duration
	StartTimeout time.Duration

	LinkRate  int
	LinkBurst int

	Debug bool
	Once  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Output:       ".",
		TickInterval: DefaultTickInterval,
		StartTimeout: DefaultStartTimeout,
		LinkRate:     DefaultLinkRate,
		LinkBurst:    DefaultLinkBurst,
	}
}

// Validate checks the configuration for mode and sets derived defaults.
func (c *Config) Validate(mode Mode) error {
	switch mode {
	case ModeSend:
		if c.LogFile == "" {
			return fmt.Errorf("%w: log-file is required", domain.ErrInvalidConfig)
		}
		if c.ListenAddr == "" {
			c.ListenAddr = DefaultListenAddr
		}
		if c.TickInterval <= 0 {
			return fmt.Errorf("%w: tick interval must be positive", domain.ErrInvalidConfig)
		}
	case ModeReceive:
		if c.PeerAddr == "" {
			return fmt.Errorf("%w: peer is required", domain.ErrInvalidConfig)
		}
		if c.Output == "" {
			c.Output = "."
		}
		if c.StartTimeout <= 0 {
			return fmt.Errorf("%w: start timeout must be positive", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", domain.ErrInvalidConfig, mode)
	}

	if c.LinkRate < 0 {
		return fmt.Errorf("%w: link rate must not be negative", domain.ErrInvalidConfig)
	}
	if c.LinkBurst < 0 {
		return fmt.Errorf("%w: link burst must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
