package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (ULOGBRIDGE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("ULOGBRIDGE_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("peer", os.Getenv("ULOGBRIDGE_PEER_ADDR"), &cfg.PeerAddr)
	s.setString("log-file", os.Getenv("ULOGBRIDGE_LOG_FILE"), &cfg.LogFile)
	s.setString("output", os.Getenv("ULOGBRIDGE_OUTPUT"), &cfg.Output)

	if err := s.setDuration("tick", os.Getenv("ULOGBRIDGE_TICK_INTERVAL"), &cfg.TickInterval); err != nil {
		return err
	}
	if err := s.setDuration("start-timeout", os.Getenv("ULOGBRIDGE_START_TIMEOUT"), &cfg.StartTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("link-rate", os.Getenv("ULOGBRIDGE_LINK_RATE"), &cfg.LinkRate); err != nil {
		return err
	}
	if err := s.setIntFromString("link-burst", os.Getenv("ULOGBRIDGE_LINK_BURST"), &cfg.LinkBurst); err != nil {
		return err
	}

	s.setBoolFromString("follow", os.Getenv("ULOGBRIDGE_FOLLOW"), &cfg.Follow)
	s.setBoolFromString("debug", os.Getenv("ULOGBRIDGE_DEBUG"), &cfg.Debug)
	s.setBoolFromString("once", os.Getenv("ULOGBRIDGE_ONCE"), &cfg.Once)

	return nil
}
