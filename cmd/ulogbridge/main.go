package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/ulogbridge/internal/adapters/bus"
	"github.com/bft-labs/ulogbridge/internal/adapters/mavlink"
	"github.com/bft-labs/ulogbridge/internal/app"
	"github.com/bft-labs/ulogbridge/internal/cliconfig"
	"github.com/bft-labs/ulogbridge/internal/producer"
	"github.com/bft-labs/ulogbridge/internal/receiver"
	logAdapter "github.com/bft-labs/ulogbridge/pkg/log"
)

const longHelp = `Stream ULog flight logs over a lossy, bandwidth-limited MAVLink UDP link.

The sender serves a log file once the receiver asks for it. The header and
definitions are delivered reliably with stop-and-wait acks; logged data is
best-effort, and the receiver marks lost chunks with dropout messages.

Configure via file ($HOME/.ulogbridge/config.toml), ULOGBRIDGE_* env vars,
or flags. Flags win over env, env wins over the file.`

var exampleUsage = strings.TrimSpace(`
  ulogbridge send --log-file flight.ulg --listen :14570
  ulogbridge send --log-file /fs/microsd/log/current.ulg --follow
  ulogbridge receive --peer 192.168.0.3:14570 --output ./logs
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger(false)

	root := &cobra.Command{
		Use:           "ulogbridge",
		Short:         "Stream ULog flight logs over a lossy UDP link",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ulogbridge/config.toml)")
	root.PersistentFlags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, fmt.Sprintf("local UDP address peers connect to (send default %s)", cliconfig.DefaultListenAddr))
	root.PersistentFlags().StringVar(&cfg.PeerAddr, "peer", cfg.PeerAddr, "remote UDP address to connect to")
	root.PersistentFlags().IntVar(&cfg.LinkRate, "link-rate", cfg.LinkRate, "link budget in bytes per second (0 = unlimited)")
	root.PersistentFlags().IntVar(&cfg.LinkBurst, "link-burst", cfg.LinkBurst, "link budget burst in bytes")
	root.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")

	// load applies file and env config under the flags, validates for mode
	// and returns the logger for the resulting level.
	load := func(cmd *cobra.Command, mode cliconfig.Mode) (zerolog.Logger, error) {
		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}

		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return log, fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return log, err
			}
		}

		// ULOGBRIDGE_* override the file but not explicit flags.
		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return log, err
		}

		if err := cfg.Validate(mode); err != nil {
			return log, err
		}

		l := cliconfig.Logger(cfg.Debug)
		l.Info().Str("mode", mode.String()).Interface("config", cfg).Msg("configuration")
		return l, nil
	}

	send := &cobra.Command{
		Use:   "send",
		Short: "Serve a ULog file to a receiver (vehicle side)",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := load(cmd, cliconfig.ModeSend)
			if err != nil {
				return err
			}
			logger := logAdapter.NewZerologAdapterWithLogger(l)

			link, err := mavlink.Open(mavlink.Config{
				Listen:   cfg.ListenAddr,
				Peer:     cfg.PeerAddr,
				SystemID: mavlink.VehicleSystemID,
				Rate:     cfg.LinkRate,
				Burst:    cfg.LinkBurst,
			}, logger)
			if err != nil {
				return err
			}
			defer link.Close()

			tel := bus.NewTelemetry()
			defer tel.Close()

			manager := app.NewManager(tel, tel, app.WithLogger(logger))
			// Leave headroom in the link budget for acked chunks and
			// their retransmissions.
			prod := producer.New(producer.Config{
				Path:   cfg.LogFile,
				Follow: cfg.Follow,
				Rate:   cfg.LinkRate * 9 / 10,
				Burst:  cfg.LinkBurst,
			}, tel, logger)
			streamer := app.NewStreamer(app.StreamerConfig{
				TickInterval: cfg.TickInterval,
				Once:         cfg.Once,
			}, manager, link, prod, logger)

			l.Info().Str("listen", cfg.ListenAddr).Str("peer", cfg.PeerAddr).Msg("waiting for receiver")

			ctx, cancel := signalContext(cmd.Context(), l)
			defer cancel()
			err = streamer.Run(ctx)

			stats := link.Stats()
			l.Info().
				Uint64("frames", stats.Sent).
				Uint64("bytes", stats.SentBytes).
				Uint64("over_budget", stats.OverBudget).
				Uint64("received", stats.Received).
				Uint64("decode_errors", stats.DecodeErrors).
				Msg("link closed")
			return err
		},
	}
	send.Flags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "ULog file to stream")
	send.Flags().BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep streaming as the file grows")
	send.Flags().DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "sender loop interval")
	send.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "exit after the first session ends")

	receive := &cobra.Command{
		Use:   "receive",
		Short: "Request a log stream and write it to a .ulg file (ground side)",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := load(cmd, cliconfig.ModeReceive)
			if err != nil {
				return err
			}
			logger := logAdapter.NewZerologAdapterWithLogger(l)

			link, err := mavlink.Open(mavlink.Config{
				Listen:   cfg.ListenAddr,
				Peer:     cfg.PeerAddr,
				SystemID: mavlink.GroundSystemID,
				Rate:     cfg.LinkRate,
				Burst:    cfg.LinkBurst,
			}, logger)
			if err != nil {
				return err
			}
			defer link.Close()

			rcfg := receiver.DefaultConfig()
			rcfg.Output = cfg.Output
			rcfg.StartTimeout = cfg.StartTimeout
			r := receiver.New(rcfg, link, logger)

			ctx, cancel := signalContext(cmd.Context(), l)
			defer cancel()
			err = r.Run(ctx)

			stats := r.Stats()
			l.Info().
				Str("path", r.Path()).
				Uint64("bytes", stats.Bytes).
				Uint64("chunks", stats.Chunks).
				Uint64("drops", stats.Drops).
				Uint64("duplicates", stats.Duplicates).
				Msg("receive finished")
			return err
		},
	}
	receive.Flags().StringVar(&cfg.Output, "output", cfg.Output, "output .ulg file or directory")
	receive.Flags().DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "give up if streaming does not start in time")

	root.AddCommand(send, receive)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("ulogbridge")
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			log.Info().Msg("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
