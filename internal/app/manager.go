package app

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/ulogbridge/internal/clock"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
	logAdapter "github.com/bft-labs/ulogbridge/pkg/log"
)

// Manager creates and destroys bridges. At most one bridge is active.
// Its mutex also guards the ack state of every bridge it created, giving
// a total order over creation, destruction and ack application.
type Manager struct {
	mu     sync.Mutex
	active *Bridge

	chunks ports.ChunkSubscriber
	acks   ports.AckAdvertiser
	cfg    BridgeConfig
	clock  clock.Clock
	logger ports.Logger
	newID  func() (uuid.UUID, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source. Defaults to clock.Real().
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l ports.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithBridgeConfig overrides the protocol timing.
func WithBridgeConfig(cfg BridgeConfig) ManagerOption {
	return func(m *Manager) { m.cfg = cfg }
}

// NewManager creates a manager whose bridges read from chunks and publish
// completion events through acks.
func NewManager(chunks ports.ChunkSubscriber, acks ports.AckAdvertiser, opts ...ManagerOption) *Manager {
	m := &Manager{
		chunks: chunks,
		acks:   acks,
		cfg:    DefaultBridgeConfig(),
		clock:  clock.Real(),
		logger: logAdapter.NewNoopLogger(),
		newID:  uuid.NewRandom,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryStart creates the bridge if none is active. It returns
// ErrAlreadyStreaming while another bridge exists.
//
// A bridge whose chunk subscription failed is still returned; it never
// yields chunks and will fail its handshake gate.
func (m *Manager) TryStart() (*Bridge, error) {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, domain.ErrAlreadyStreaming
	}

	id, err := m.newID()
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("alloc failed", ports.Err(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrAllocationFailed, err)
	}

	b := &Bridge{
		id:         id,
		mu:         &m.mu,
		cfg:        m.cfg,
		clock:      m.clock,
		logger:     m.logger,
		createdAt:  m.clock.Now(),
		advertiser: m.acks,
	}
	if m.chunks != nil {
		src, err := m.chunks.SubscribeChunks()
		if err != nil {
			m.logger.Error("subscribe failed",
				ports.String("session", id.String()),
				ports.Err(fmt.Errorf("%w: %v", domain.ErrSubscriptionFailed, err)))
		} else {
			b.source = src
		}
	}
	m.active = b
	m.mu.Unlock()

	m.logger.Info("streaming session created", ports.String("session", id.String()))
	return b, nil
}

// Stop destroys b. It returns ErrNotStreaming if b is not the active
// bridge. An ack being applied concurrently either completes first or
// observes the bridge as stopped.
func (m *Manager) Stop(b *Bridge) error {
	m.mu.Lock()
	if b == nil || m.active != b {
		m.mu.Unlock()
		return domain.ErrNotStreaming
	}
	b.destroyLocked()
	m.active = nil
	m.mu.Unlock()

	stats := b.Stats()
	m.logger.Info("streaming session stopped",
		ports.String("session", b.id.String()),
		ports.Uint64("chunks", stats.ChunksSent),
		ports.Uint64("retransmits", stats.Retransmits),
		ports.Uint64("acks", stats.Acks))
	return nil
}

// Active returns the active bridge, or nil.
func (m *Manager) Active() *Bridge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
