package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/bft-labs/ulogbridge/internal/adapters/bus"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
	"github.com/bft-labs/ulogbridge/internal/ulog"
)

// Config contains configuration for a producer.
type Config struct {
	// Path is the ULog file to stream.
	Path string

	// Follow keeps reading as the file grows until the context is done.
	Follow bool

	// Rate limits best-effort data in bytes per second. Zero disables the
	// limit.
	Rate int

	// Burst is the limiter bucket size in bytes. It is raised to at least
	// one chunk.
	Burst int
}

// Producer publishes a ULog file as chunks on the telemetry bus. It
// implements ports.Producer; each Run streams the file from the start.
type Producer struct {
	config Config
	bus    *bus.Telemetry
	logger ports.Logger
}

// New creates a producer publishing to tel.
func New(config Config, tel *bus.Telemetry, logger ports.Logger) *Producer {
	return &Producer{config: config, bus: tel, logger: logger}
}

type source interface {
	io.Reader
	io.Closer
}

// Run streams the file. It returns nil when the file is exhausted (or,
// in follow mode, removed) and the context error when ctx is done.
func (p *Producer) Run(ctx context.Context, started func()) error {
	var (
		src    source
		follow *FollowReader
		err    error
	)
	if p.config.Follow {
		follow, err = NewFollowReader(ctx, p.config.Path)
		src = follow
	} else {
		src, err = os.Open(p.config.Path)
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer src.Close()

	acks, err := p.bus.Acks.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe acks: %w", err)
	}
	defer acks.Close()

	started()

	var limiter *rate.Limiter
	if p.config.Rate > 0 {
		burst := p.config.Burst
		if burst < domain.ChunkDataLen {
			burst = domain.ChunkDataLen
		}
		limiter = rate.NewLimiter(rate.Limit(p.config.Rate), burst)
	}

	var stats struct {
		chunks, acked, bytes uint64
	}
	emit := func(c domain.LogChunk) error {
		if !c.NeedsAck && limiter != nil {
			if err := limiter.WaitN(ctx, int(c.Length)); err != nil {
				return err
			}
		}
		if dropped := p.bus.Chunks.Publish(c); dropped > 0 {
			p.logger.Debug("chunk queue overflow", ports.Int("dropped", dropped))
		}
		stats.chunks++
		stats.bytes += uint64(c.Length)
		if !c.NeedsAck {
			return nil
		}
		stats.acked++
		return waitAck(ctx, acks, c.Sequence)
	}

	chunker := NewChunker(emit)
	if follow != nil {
		follow.OnIdle = chunker.Flush
	}

	r := ulog.NewReader(src)
	hdr, raw, err := r.ReadHeader()
	if err != nil {
		return fmt.Errorf("read log header: %w", err)
	}
	p.logger.Info("streaming log file",
		ports.String("path", p.config.Path),
		ports.Bool("follow", p.config.Follow),
		ports.Uint64("start_us", hdr.Timestamp))

	if err := chunker.WriteHeader(raw, true); err != nil {
		return err
	}

	inData := false
	for {
		msg, err := r.Next()
		if errors.Is(err, io.ErrUnexpectedEOF) && !p.config.Follow {
			p.logger.Warn("log file ends inside a message", ports.String("path", p.config.Path))
			err = io.EOF
		}
		if errors.Is(err, io.EOF) {
			if err := chunker.Flush(); err != nil {
				return err
			}
			p.logger.Info("log file finished",
				ports.Uint64("chunks", stats.chunks),
				ports.Uint64("acked", stats.acked),
				ports.Uint64("bytes", stats.bytes))
			return nil
		}
		if err != nil {
			return err
		}

		if !inData && msg[2] == ulog.TypeAddLoggedMsg {
			inData = true
			p.logger.Debug("definitions sent", ports.Uint64("acked", stats.acked))
		}
		if err := chunker.WriteMessage(msg, !inData); err != nil {
			return err
		}
	}
}

// waitAck blocks until the completion event for seq arrives. Events for
// other sequences are duplicates and are skipped.
func waitAck(ctx context.Context, acks *bus.Subscription[domain.AckEvent], seq uint16) error {
	for {
		ev, err := acks.Wait(ctx)
		if err != nil {
			return err
		}
		if ev.Sequence == seq {
			return nil
		}
	}
}
