package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/google/uuid"

	"github.com/bft-labs/ulogbridge/internal/clock"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
	"github.com/bft-labs/ulogbridge/internal/wire"
)

// Chunk payloads are copied straight into MAVLink messages; both sizes
// must agree. A mismatch makes one of these array lengths negative.
var (
	_ [len(domain.LogChunk{}.Data) - len(common.MessageLoggingData{}.Data)]struct{}
	_ [len(common.MessageLoggingData{}.Data) - len(domain.LogChunk{}.Data)]struct{}
	_ [len(domain.LogChunk{}.Data) - len(common.MessageLoggingDataAcked{}.Data)]struct{}
	_ [len(common.MessageLoggingDataAcked{}.Data) - len(domain.LogChunk{}.Data)]struct{}
)

// BridgeConfig holds the protocol timing of a bridge.
type BridgeConfig struct {
	AckTimeout     time.Duration
	AckMaxTries    int
	HandshakeGrace time.Duration
}

// DefaultBridgeConfig returns the fixed protocol constants.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		AckTimeout:     domain.AckTimeout,
		AckMaxTries:    domain.AckMaxTries,
		HandshakeGrace: domain.HandshakeGrace,
	}
}

// UpdateResult summarizes one sender loop tick.
type UpdateResult int

const (
	// UpdateIdle: no chunks were available.
	UpdateIdle UpdateResult = iota
	// UpdateSent: at least one chunk was sent.
	UpdateSent
	// UpdateWaiting: held back by the handshake gate or an outstanding ack.
	UpdateWaiting
	// UpdateRetransmitted: the outstanding chunk was sent again.
	UpdateRetransmitted
	// UpdateFailed: the session is dead; the error says why.
	UpdateFailed
)

// String returns a human-readable representation of the result.
func (r UpdateResult) String() string {
	switch r {
	case UpdateIdle:
		return "Idle"
	case UpdateSent:
		return "Sent"
	case UpdateWaiting:
		return "Waiting"
	case UpdateRetransmitted:
		return "Retransmitted"
	case UpdateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// BridgeStats is a snapshot of a bridge's counters.
type BridgeStats struct {
	ChunksSent  uint64
	AckedSent   uint64
	Retransmits uint64
	Acks        uint64
	StaleAcks   uint64
	SendErrors  uint64
}

type bridgeCounters struct {
	chunksSent  atomic.Uint64
	ackedSent   atomic.Uint64
	retransmits atomic.Uint64
	acks        atomic.Uint64
	staleAcks   atomic.Uint64
	sendErrors  atomic.Uint64
}

// Bridge is one streaming session. It is created by Manager.TryStart and
// is unusable after Manager.Stop.
//
// HandleUpdate must be called from a single goroutine. HandleAck and
// HandshakeReceived may be called from any goroutine.
type Bridge struct {
	id        uuid.UUID
	mu        *sync.Mutex // the manager lock
	cfg       BridgeConfig
	clock     clock.Clock
	logger    ports.Logger
	createdAt time.Time

	source     ports.ChunkSource
	advertiser ports.AckAdvertiser
	publisher  ports.AckPublisher

	// guarded by mu
	acks    ackTracker
	failure error
	closed  bool

	// inflight is the captured acknowledged chunk. Only the sender loop
	// touches it.
	inflight domain.LogChunk

	counters bridgeCounters
}

// ID returns the session id.
func (b *Bridge) ID() uuid.UUID { return b.id }

// State returns the ack tracker state.
func (b *Bridge) State() AckState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks.state
}

// Err returns the fatal error of a failed session, or nil.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

// Stats returns a snapshot of the session counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		ChunksSent:  b.counters.chunksSent.Load(),
		AckedSent:   b.counters.ackedSent.Load(),
		Retransmits: b.counters.retransmits.Load(),
		Acks:        b.counters.acks.Load(),
		StaleAcks:   b.counters.staleAcks.Load(),
		SendErrors:  b.counters.sendErrors.Load(),
	}
}

// HandshakeReceived records that the local producer is running. Until it
// is called the sender loop consumes nothing.
func (b *Bridge) HandshakeReceived() {
	b.mu.Lock()
	changed := !b.closed && b.acks.handshake()
	b.mu.Unlock()
	if changed {
		b.logger.Debug("got log producer handshake", ports.String("session", b.id.String()))
	}
}

// HandleUpdate runs one sender loop tick, sending on link.
//
// A non-nil error means the session is dead (ErrHandshakeTimeout,
// ErrAckTimeout or ErrStopped) and the caller must Stop the bridge.
func (b *Bridge) HandleUpdate(link ports.Link) (UpdateResult, error) {
	now := b.clock.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return UpdateFailed, domain.ErrStopped
	}

	switch b.acks.state {
	case AckFailed:
		err := b.failure
		b.mu.Unlock()
		return UpdateFailed, err

	case AckAwaitingHandshake:
		if now.Sub(b.createdAt) <= b.cfg.HandshakeGrace {
			b.mu.Unlock()
			return UpdateWaiting, nil
		}
		b.acks.fail()
		b.failure = domain.ErrHandshakeTimeout
		b.mu.Unlock()
		b.logger.Warn("no ack from log producer (is it running?)",
			ports.String("session", b.id.String()),
			ports.Duration("grace", b.cfg.HandshakeGrace))
		return UpdateFailed, domain.ErrHandshakeTimeout

	case AckWaiting:
		if !b.acks.settle() {
			action := b.acks.onTimeout(now, b.cfg.AckTimeout, b.cfg.AckMaxTries)
			tries := b.acks.retryCount
			switch action {
			case timeoutPending:
				b.mu.Unlock()
				return UpdateWaiting, nil

			case timeoutExhausted:
				seq := b.acks.waitingSequence
				err := fmt.Errorf("%w: sequence %d after %d tries", domain.ErrAckTimeout, seq, tries)
				b.failure = err
				b.mu.Unlock()
				b.logger.Warn("ack timeout",
					ports.String("session", b.id.String()),
					ports.Uint16("seq", seq),
					ports.Int("tries", tries))
				return UpdateFailed, err

			case timeoutRetransmit:
				b.mu.Unlock()
				b.logger.Debug("re-sending chunk",
					ports.Uint16("seq", b.inflight.Sequence),
					ports.Int("try", tries))
				b.counters.retransmits.Add(1)
				b.transmit(link, &b.inflight)
				return UpdateRetransmitted, nil
			}
		}
	}
	b.mu.Unlock()

	return b.drain(link, now)
}

// drain forwards every available chunk until it meets one that needs an
// ack. The acked chunk is captured for retransmission and ends the tick.
func (b *Bridge) drain(link ports.Link, now time.Time) (UpdateResult, error) {
	if b.source == nil {
		return UpdateIdle, nil
	}

	result := UpdateIdle
	for {
		chunk, ok := b.source.Next()
		if !ok {
			return result, nil
		}
		result = UpdateSent

		if !chunk.NeedsAck {
			b.transmit(link, &chunk)
			continue
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return UpdateFailed, domain.ErrStopped
		}
		err := b.acks.beginWait(chunk.Sequence, now)
		b.mu.Unlock()
		if err != nil {
			return UpdateFailed, err
		}
		b.inflight = chunk
		b.transmit(link, &b.inflight)
		return UpdateSent, nil
	}
}

// transmit sends chunk as LOGGING_DATA_ACKED or LOGGING_DATA, selected by
// NeedsAck. Send errors count as wire loss.
func (b *Bridge) transmit(link ports.Link, chunk *domain.LogChunk) {
	if chunk.NeedsAck {
		b.counters.ackedSent.Add(1)
	}
	b.counters.chunksSent.Add(1)

	if err := link.Send(wire.Data(chunk)); err != nil {
		b.counters.sendErrors.Add(1)
		b.logger.Debug("link send failed",
			ports.Uint16("seq", chunk.Sequence),
			ports.Err(err))
	}
}

// HandleAck applies an inbound acknowledgment. It returns true when the
// ack resolved the outstanding chunk and a completion event was published.
// Stale, duplicate and post-teardown acks return false.
func (b *Bridge) HandleAck(sequence uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if !b.acks.resolve(sequence) {
		b.counters.staleAcks.Add(1)
		return false
	}
	b.counters.acks.Add(1)
	b.publishAckLocked(domain.AckEvent{Sequence: sequence, Timestamp: b.clock.Now()})
	return true
}

// publishAckLocked advertises the completion topic on first use.
func (b *Bridge) publishAckLocked(ev domain.AckEvent) {
	if b.publisher == nil {
		if b.advertiser == nil {
			return
		}
		pub, err := b.advertiser.AdvertiseAcks()
		if err != nil {
			b.logger.Error("advertise ack topic failed", ports.Err(err))
			return
		}
		b.publisher = pub
	}
	b.publisher.Publish(ev)
}

// destroyLocked releases the bus handles. Callers hold mu.
func (b *Bridge) destroyLocked() {
	b.closed = true
	if b.publisher != nil {
		_ = b.publisher.Close()
		b.publisher = nil
	}
	if b.source != nil {
		_ = b.source.Close()
	}
}
