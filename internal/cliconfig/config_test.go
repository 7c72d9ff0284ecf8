package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/ulogbridge/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TickInterval != 10*time.Millisecond {
		t.Errorf("TickInterval = %v, want 10ms", cfg.TickInterval)
	}
	if cfg.StartTimeout != 4*time.Second {
		t.Errorf("StartTimeout = %v, want 4s", cfg.StartTimeout)
	}
	if cfg.Output != "." {
		t.Errorf("Output = %q, want .", cfg.Output)
	}
	if cfg.LinkRate != DefaultLinkRate || cfg.LinkBurst != DefaultLinkBurst {
		t.Errorf("link budget = %d/%d, want %d/%d", cfg.LinkRate, cfg.LinkBurst, DefaultLinkRate, DefaultLinkBurst)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		config     Config
		wantErr    bool
		wantListen string
	}{
		{
			name:       "send with log file",
			mode:       ModeSend,
			config:     Config{LogFile: "flight.ulg", TickInterval: time.Millisecond},
			wantListen: DefaultListenAddr,
		},
		{
			name:       "send keeps explicit listen address",
			mode:       ModeSend,
			config:     Config{LogFile: "flight.ulg", ListenAddr: "127.0.0.1:9000", TickInterval: time.Millisecond},
			wantListen: "127.0.0.1:9000",
		},
		{
			name:    "send without log file",
			mode:    ModeSend,
			config:  Config{TickInterval: time.Millisecond},
			wantErr: true,
		},
		{
			name:    "send without tick interval",
			mode:    ModeSend,
			config:  Config{LogFile: "flight.ulg"},
			wantErr: true,
		},
		{
			name:       "receive with peer",
			mode:       ModeReceive,
			config:     Config{PeerAddr: "10.0.0.2:14570", StartTimeout: time.Second},
			wantListen: "",
		},
		{
			name:    "receive without peer",
			mode:    ModeReceive,
			config:  Config{StartTimeout: time.Second},
			wantErr: true,
		},
		{
			name:    "receive without start timeout",
			mode:    ModeReceive,
			config:  Config{PeerAddr: "10.0.0.2:14570"},
			wantErr: true,
		},
		{
			name:    "negative link rate",
			mode:    ModeSend,
			config:  Config{LogFile: "flight.ulg", TickInterval: time.Millisecond, LinkRate: -1},
			wantErr: true,
		},
		{
			name:    "negative link burst",
			mode:    ModeReceive,
			config:  Config{PeerAddr: "10.0.0.2:14570", StartTimeout: time.Second, LinkBurst: -1},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mode:    Mode(7),
			config:  DefaultConfig(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			err := cfg.Validate(tt.mode)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidConfig) {
					t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if cfg.ListenAddr != tt.wantListen {
				t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, tt.wantListen)
			}
		})
	}
}

func TestMode_String(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeSend, "send"},
		{ModeReceive, "receive"},
		{Mode(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestConfigSetter(t *testing.T) {
	s := newConfigSetter(map[string]bool{"peer": true})

	var peer, listen string
	s.setString("peer", "10.0.0.1:1", &peer)
	s.setString("listen", "", &listen)
	if peer != "" || listen != "" {
		t.Errorf("setString applied a changed flag or empty value: peer=%q listen=%q", peer, listen)
	}

	n := 5
	s.setInt("link-rate", 0, &n)
	if n != 5 {
		t.Errorf("setInt applied a non-positive value: %d", n)
	}
	if err := s.setIntFromString("link-rate", "x", &n); err == nil {
		t.Error("setIntFromString accepted a non-number")
	}

	var d time.Duration
	if err := s.setDuration("tick", "25ms", &d); err != nil || d != 25*time.Millisecond {
		t.Errorf("setDuration = %v, %v", d, err)
	}

	var b bool
	s.setBoolFromString("follow", "1", &b)
	if !b {
		t.Error("setBoolFromString did not accept 1")
	}
	s.setBoolFromString("follow", "yes", &b)
	if b {
		t.Error("setBoolFromString accepted yes")
	}
}
