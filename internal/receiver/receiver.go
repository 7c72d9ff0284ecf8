// Package receiver implements the ground side of a log stream: it asks the
// peer to start streaming, acknowledges reliable chunks, tracks drops and
// writes the reassembled ULog file.
package receiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/bft-labs/ulogbridge/internal/clock"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
	"github.com/bft-labs/ulogbridge/internal/ulog"
	"github.com/bft-labs/ulogbridge/internal/wire"
)

// Default timing.
const (
	DefaultStartTimeout   = 4 * time.Second
	DefaultStatusInterval = time.Second
)

// Config contains configuration for a receiver.
type Config struct {
	// Output is the file to write, or a directory in which a file named
	// after the start time is created.
	Output string

	StartTimeout   time.Duration
	StatusInterval time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

// DefaultConfig returns a Config with default timing writing to the
// current directory.
func DefaultConfig() Config {
	return Config{
		Output:         ".",
		StartTimeout:   DefaultStartTimeout,
		StatusInterval: DefaultStatusInterval,
		RetryInitial:   DefaultRetryInitial,
		RetryMax:       DefaultRetryMax,
	}
}

// Stats is a snapshot of the receiver counters.
type Stats struct {
	Chunks     uint64
	Bytes      uint64
	Drops      uint64
	Duplicates uint64
	Acks       uint64
	Reacks     uint64
}

type counters struct {
	chunks     atomic.Uint64
	bytes      atomic.Uint64
	drops      atomic.Uint64
	duplicates atomic.Uint64
	acks       atomic.Uint64
	reacks     atomic.Uint64
}

// Receiver drives one receive session over a transport.
type Receiver struct {
	config    Config
	transport ports.Transport
	logger    ports.Logger
	clock     clock.Clock

	// loop state, owned by the Run goroutine
	tracker       domain.SequenceTracker
	asm           *ulog.Assembler
	started       bool
	headerSection bool
	lastAcked     uint16
	hasAcked      bool
	startedAt     time.Time
	windowStart   time.Time
	windowBytes   uint64
	path          string

	counters counters
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithClock sets the time source. Defaults to clock.Real().
func WithClock(c clock.Clock) Option {
	return func(r *Receiver) { r.clock = c }
}

// New creates a receiver.
func New(config Config, transport ports.Transport, logger ports.Logger, opts ...Option) *Receiver {
	r := &Receiver{
		config:    config,
		transport: transport,
		logger:    logger,
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Chunks:     r.counters.chunks.Load(),
		Bytes:      r.counters.bytes.Load(),
		Drops:      r.counters.drops.Load(),
		Duplicates: r.counters.duplicates.Load(),
		Acks:       r.counters.acks.Load(),
		Reacks:     r.counters.reacks.Load(),
	}
}

// Path returns the output file path chosen by Run.
func (r *Receiver) Path() string { return r.path }

// OutputPath resolves output to a file path. A directory gets a file named
// after now.
func OutputPath(output string, now time.Time) string {
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return filepath.Join(output, now.Format("2006-01-02_15-04-05")+".ulg")
	}
	return output
}

// Run requests streaming and writes the log until ctx is done, the peer
// refuses or never starts, or the transport fails. It always asks the
// peer to stop before returning.
func (r *Receiver) Run(ctx context.Context) (err error) {
	r.path = OutputPath(r.config.Output, time.Now())
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriter(f)
	defer func() {
		ferr := w.Flush()
		cerr := f.Close()
		if err == nil {
			err = errors.Join(ferr, cerr)
		}
	}()
	r.asm = ulog.NewAssembler(w)
	r.logger.Info("writing log", ports.String("path", r.path))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan wire.Message, 64)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- r.transport.Serve(ctx, func(m wire.Message) {
			select {
			case inbound <- m:
			case <-ctx.Done():
			}
		})
	}()

	r.startedAt = r.clock.Now()
	r.windowStart = r.startedAt
	defer r.sendCommand(wire.Stop())
	r.sendCommand(wire.Start())

	bo := newBackoff(r.config.RetryInitial, r.config.RetryMax)
	retry := time.NewTimer(bo.Next())
	defer retry.Stop()
	status := time.NewTicker(r.config.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-serveErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: %w", err)

		case <-retry.C:
			if r.started {
				continue
			}
			if err := r.checkStartTimeout(); err != nil {
				return err
			}
			r.sendCommand(wire.Start())
			retry.Reset(bo.Next())

		case m := <-inbound:
			if err := r.HandleMessage(m); err != nil {
				return err
			}

		case <-status.C:
			if err := r.checkStartTimeout(); err != nil {
				return err
			}
			r.report()
		}
	}
}

func (r *Receiver) checkStartTimeout() error {
	if r.started || r.clock.Now().Sub(r.startedAt) <= r.config.StartTimeout {
		return nil
	}
	return domain.ErrStartTimeout
}

// HandleMessage processes one inbound message. A non-nil error ends the
// session.
func (r *Receiver) HandleMessage(msg wire.Message) error {
	if m, ok := msg.(*common.MessageCommandAck); ok {
		if m.Command != common.MAV_CMD_LOGGING_START || r.headerSection {
			return nil
		}
		switch m.Result {
		case common.MAV_RESULT_ACCEPTED, common.MAV_RESULT_IN_PROGRESS:
			if !r.started {
				r.started = true
				r.logger.Info("logging started, waiting for header")
			}
			return nil
		case common.MAV_RESULT_TEMPORARILY_REJECTED:
			// The peer is shutting down a previous run; the retry timer
			// asks again.
			r.logger.Debug("start temporarily rejected")
			return nil
		default:
			return fmt.Errorf("%w: %v", domain.ErrStartRejected, m.Result)
		}
	}

	chunk, ok := wire.Chunk(msg)
	if !ok {
		r.logger.Debug("ignoring message", ports.String("message", wire.Name(msg)))
		return nil
	}
	return r.data(&chunk)
}

func (r *Receiver) data(c *domain.LogChunk) error {
	seq, acked := c.Sequence, c.NeedsAck
	data := c.Data[:]
	if int(c.Length) < len(data) {
		data = data[:c.Length]
	}

	verdict, drops := r.tracker.Check(seq)
	if verdict != domain.SequenceNewer {
		r.counters.duplicates.Add(1)
		// The ack for the last chunk may have been lost; repeat it so the
		// sender can move on.
		if verdict == domain.SequenceDuplicate && acked && r.hasAcked && seq == r.lastAcked {
			r.counters.reacks.Add(1)
			r.sendAck(seq)
		}
		r.logger.Debug("dup/reordered chunk",
			ports.Uint16("seq", seq),
			ports.String("verdict", verdict.String()))
		return nil
	}

	if acked {
		r.sendAck(seq)
		r.lastAcked = seq
		r.hasAcked = true
	} else if !r.headerSection {
		r.headerSection = true
		r.started = true
		r.asm.EnterDataSection()
		r.logger.Info("header received",
			ports.Duration("elapsed", r.clock.Now().Sub(r.startedAt)))
	}

	if drops > 0 {
		r.counters.drops.Add(uint64(drops))
		r.logger.Debug("chunks dropped", ports.Uint16("seq", seq), ports.Int("drops", drops))
	}
	r.counters.chunks.Add(1)
	r.counters.bytes.Add(uint64(len(data)))
	r.windowBytes += uint64(len(data))

	if err := r.asm.Feed(data, c.FirstMessageOffset, drops); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func (r *Receiver) sendAck(seq uint16) {
	r.counters.acks.Add(1)
	if err := r.transport.Send(wire.Ack(seq)); err != nil {
		r.logger.Debug("ack send failed", ports.Uint16("seq", seq), ports.Err(err))
	}
}

func (r *Receiver) sendCommand(cmd *common.MessageCommandLong) {
	r.logger.Debug("sending command", ports.String("command", cmd.Command.String()))
	if err := r.transport.Send(cmd); err != nil {
		r.logger.Warn("command send failed",
			ports.String("command", cmd.Command.String()),
			ports.Err(err))
	}
}

// report logs the data rate since the previous report.
func (r *Receiver) report() {
	now := r.clock.Now()
	dt := now.Sub(r.windowStart)
	if !r.started || dt <= 0 {
		return
	}
	r.logger.Info("streaming",
		ports.Float64("kib_per_s", float64(r.windowBytes)/dt.Seconds()/1024),
		ports.Uint64("drops", r.counters.drops.Load()))
	r.windowStart = now
	r.windowBytes = 0
}
