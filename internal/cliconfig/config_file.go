package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ListenAddr   string `toml:"listen_addr"`
	PeerAddr     string `toml:"peer_addr"`
	LogFile      string `toml:"log_file"`
	Follow       *bool  `toml:"follow"`
	Output       string `toml:"output"`
	TickInterval string `toml:"tick_interval"`
	StartTimeout string `toml:"start_timeout"`
	LinkRate     int    `toml:"link_rate"`
	LinkBurst    int    `toml:"link_burst"`
	Debug        *bool  `toml:"debug"`
	Once         *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.ulogbridge/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ulogbridge", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("peer", fc.PeerAddr, &cfg.PeerAddr)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("output", fc.Output, &cfg.Output)

	if err := s.setDuration("tick", fc.TickInterval, &cfg.TickInterval); err != nil {
		return err
	}
	if err := s.setDuration("start-timeout", fc.StartTimeout, &cfg.StartTimeout); err != nil {
		return err
	}

	s.setInt("link-rate", fc.LinkRate, &cfg.LinkRate)
	s.setInt("link-burst", fc.LinkBurst, &cfg.LinkBurst)

	s.setBool("follow", fc.Follow, &cfg.Follow)
	s.setBool("debug", fc.Debug, &cfg.Debug)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
