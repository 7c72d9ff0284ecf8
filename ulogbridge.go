// Package ulogbridge streams ULog flight logs over a lossy link. Chunks of
// the header and definitions section are delivered with stop-and-wait acks;
// logged data is best-effort.
//
// A Manager owns at most one streaming session (a Bridge). The package also
// keeps a process-wide default manager:
//
//	tel := bus.NewTelemetry()
//	ulogbridge.Initialize(tel, tel, ulogbridge.WithLogger(logger))
//	b, err := ulogbridge.TryStart()
//	if err != nil {
//	    return err
//	}
//	defer ulogbridge.Stop(b)
//	for range ticker.C {
//	    if _, err := b.HandleUpdate(link); err != nil {
//	        return err
//	    }
//	}
package ulogbridge

import (
	"sync"
	"sync/atomic"

	"github.com/bft-labs/ulogbridge/internal/app"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
)

// Bridge is one streaming session.
type Bridge = app.Bridge

// Manager creates and destroys bridges.
type Manager = app.Manager

// ManagerOption configures a Manager.
type ManagerOption = app.ManagerOption

// BridgeConfig holds the protocol timing of a bridge.
type BridgeConfig = app.BridgeConfig

// UpdateResult summarizes one sender loop tick.
type UpdateResult = app.UpdateResult

// AckState is the state of a bridge's ack tracker.
type AckState = app.AckState

// Ports a host provides to a manager.
type (
	ChunkSubscriber = ports.ChunkSubscriber
	AckAdvertiser   = ports.AckAdvertiser
	Link            = ports.Link
	Logger          = ports.Logger
)

// Manager options.
var (
	WithClock        = app.WithClock
	WithLogger       = app.WithLogger
	WithBridgeConfig = app.WithBridgeConfig
)

// Errors returned by the lifecycle and the sender loop.
var (
	ErrAlreadyStreaming = domain.ErrAlreadyStreaming
	ErrNotStreaming     = domain.ErrNotStreaming
	ErrNotInitialized   = domain.ErrNotInitialized
	ErrHandshakeTimeout = domain.ErrHandshakeTimeout
	ErrAckTimeout       = domain.ErrAckTimeout
	ErrAllocationFailed = domain.ErrAllocationFailed
	ErrStopped          = domain.ErrStopped
)

var (
	initOnce       sync.Once
	defaultManager atomic.Pointer[app.Manager]
)

// NewManager creates a manager whose bridges read from chunks and publish
// completion events through acks.
func NewManager(chunks ChunkSubscriber, acks AckAdvertiser, opts ...ManagerOption) *Manager {
	return app.NewManager(chunks, acks, opts...)
}

// Initialize sets up the default manager. Only the first call has any
// effect.
func Initialize(chunks ChunkSubscriber, acks AckAdvertiser, opts ...ManagerOption) {
	initOnce.Do(func() {
		defaultManager.Store(app.NewManager(chunks, acks, opts...))
	})
}

// Default returns the default manager, or nil before Initialize.
func Default() *Manager {
	return defaultManager.Load()
}

// TryStart starts a session on the default manager.
func TryStart() (*Bridge, error) {
	m := defaultManager.Load()
	if m == nil {
		return nil, ErrNotInitialized
	}
	return m.TryStart()
}

// Stop destroys b on the default manager.
func Stop(b *Bridge) error {
	m := defaultManager.Load()
	if m == nil {
		return ErrNotInitialized
	}
	return m.Stop(b)
}
