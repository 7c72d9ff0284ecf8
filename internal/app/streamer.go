package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
	"github.com/bft-labs/ulogbridge/internal/wire"
)

// DefaultTickInterval is the sender loop cadence.
const DefaultTickInterval = 10 * time.Millisecond

// StreamerConfig contains configuration for the streamer loop.
type StreamerConfig struct {
	TickInterval time.Duration

	// Once makes Run return when the first session ends.
	Once bool
}

// Streamer is the vehicle-side scheduler. It answers start and stop
// commands from the peer, ticks the active bridge and tears the session
// down when the bridge reports a fatal outcome.
type Streamer struct {
	config    StreamerConfig
	manager   *Manager
	transport ports.Transport
	producer  ports.Producer
	logger    ports.Logger
	run       *runState

	// mu orders session creation against shutdown: no session starts once
	// the state left Listening and Streaming.
	mu      sync.Mutex
	runCtx  context.Context
	session *streamSession
	ended   chan error
}

type streamSession struct {
	bridge *Bridge
	cancel context.CancelFunc
}

// NewStreamer creates a streamer. producer is started once per session.
func NewStreamer(
	config StreamerConfig,
	manager *Manager,
	transport ports.Transport,
	producer ports.Producer,
	logger ports.Logger,
) *Streamer {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	return &Streamer{
		config:    config,
		manager:   manager,
		transport: transport,
		producer:  producer,
		logger:    logger,
		run:       newRunState(logger),
		ended:     make(chan error, 1),
	}
}

// State returns the current run state.
func (s *Streamer) State() State {
	return s.run.get()
}

// Stop cancels a running Run.
func (s *Streamer) Stop() error {
	if !s.run.stop() {
		return domain.ErrNotRunning
	}
	return nil
}

// Run serves the transport and ticks the sender loop until ctx is done or
// the transport fails. In once mode it also returns when the first session
// ends, with that session's fatal error if any.
func (s *Streamer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.run.begin(cancel); err != nil {
		return err
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	s.run.spawn(func() {
		serveErr <- s.transport.Serve(ctx, s.HandleMessage)
	})

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown("context done")
			return nil

		case err := <-serveErr:
			if ctx.Err() != nil {
				s.shutdown("context done")
				return nil
			}
			s.logger.Error("transport failed", ports.Err(err))
			s.mu.Lock()
			_ = s.run.set(StateFailed, "transport failed")
			s.mu.Unlock()
			s.endSession("transport failed")
			cancel()
			_ = s.run.wait(ShutdownTimeout)
			return err

		case err := <-s.ended:
			if s.config.Once {
				s.shutdown("session ended")
				return err
			}

		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Streamer) shutdown(reason string) {
	s.mu.Lock()
	_ = s.run.set(StateStopping, reason)
	s.mu.Unlock()

	s.endSession(reason)
	s.run.cancelRun()
	if err := s.run.wait(ShutdownTimeout); err != nil {
		_ = s.run.set(StateFailed, "shutdown timeout")
		return
	}
	_ = s.run.set(StateStopped, reason)
}

// tick runs one sender loop iteration on the active bridge.
func (s *Streamer) tick() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return
	}

	_, err := sess.bridge.HandleUpdate(s.transport)
	if err == nil || errors.Is(err, domain.ErrStopped) {
		return
	}
	s.logger.Warn("streaming session failed",
		ports.String("session", sess.bridge.ID().String()),
		ports.Err(err))
	if s.endSessionIf(sess, "session failed") {
		s.signalEnded(err)
	}
}

// HandleMessage dispatches one inbound message. It is the transport's
// message handler.
func (s *Streamer) HandleMessage(msg wire.Message) {
	switch m := msg.(type) {
	case *common.MessageLoggingAck:
		s.mu.Lock()
		sess := s.session
		s.mu.Unlock()
		if sess == nil {
			s.logger.Debug("ack without session", ports.Uint16("seq", m.Sequence))
			return
		}
		sess.bridge.HandleAck(m.Sequence)

	case *common.MessageCommandLong:
		var result common.MAV_RESULT
		switch m.Command {
		case common.MAV_CMD_LOGGING_START:
			result = s.startSession()
		case common.MAV_CMD_LOGGING_STOP:
			if s.endSession("stop command") {
				s.signalEnded(nil)
			}
			result = common.MAV_RESULT_ACCEPTED
		default:
			result = common.MAV_RESULT_UNSUPPORTED
		}
		s.logger.Info("command",
			ports.String("command", m.Command.String()),
			ports.String("result", result.String()))
		if err := s.transport.Send(wire.CommandAck(m.Command, result)); err != nil {
			s.logger.Warn("command ack send failed", ports.Err(err))
		}

	default:
		s.logger.Debug("ignoring message", ports.String("message", wire.Name(msg)))
	}
}

// startSession answers a start command. Starts are refused while Run is
// not serving, so shutdown never races a new session.
func (s *Streamer) startSession() common.MAV_RESULT {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.run.get().serving() {
		return common.MAV_RESULT_TEMPORARILY_REJECTED
	}

	b, err := s.manager.TryStart()
	switch {
	case errors.Is(err, domain.ErrAlreadyStreaming):
		return common.MAV_RESULT_IN_PROGRESS
	case err != nil:
		s.logger.Error("start failed", ports.Err(err))
		return common.MAV_RESULT_FAILED
	}

	parent := s.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s.session = &streamSession{bridge: b, cancel: cancel}
	_ = s.run.set(StateStreaming, "start command")

	s.run.spawn(func() {
		err := s.producer.Run(ctx, b.HandshakeReceived)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("producer failed",
				ports.String("session", b.ID().String()),
				ports.Err(err))
			return
		}
		s.logger.Debug("producer finished", ports.String("session", b.ID().String()))
	})
	return common.MAV_RESULT_ACCEPTED
}

// endSession stops the producer and the bridge of the current session.
func (s *Streamer) endSession(reason string) bool {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	return s.endSessionIf(sess, reason)
}

// endSessionIf ends sess unless another caller already replaced it.
func (s *Streamer) endSessionIf(sess *streamSession, reason string) bool {
	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return false
	}
	s.session = nil
	s.mu.Unlock()

	sess.cancel()
	if err := s.manager.Stop(sess.bridge); err != nil && !errors.Is(err, domain.ErrNotStreaming) {
		s.logger.Error("stop failed", ports.Err(err))
	}
	if s.run.get() == StateStreaming {
		_ = s.run.set(StateListening, reason)
	}
	return true
}

func (s *Streamer) signalEnded(err error) {
	select {
	case s.ended <- err:
	default:
	}
}
