package bus

import (
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
)

// Telemetry holds the two topics shared by the producer and the bridge.
// It implements ports.ChunkSubscriber and ports.AckAdvertiser.
type Telemetry struct {
	Chunks *Topic[domain.LogChunk]
	Acks   *Topic[domain.AckEvent]
}

// NewTelemetry creates the chunk and completion-event topics with their
// protocol queue depths.
func NewTelemetry() *Telemetry {
	return &Telemetry{
		Chunks: NewTopic[domain.LogChunk](domain.ChunkQueueDepth),
		Acks:   NewTopic[domain.AckEvent](domain.AckQueueDepth),
	}
}

// SubscribeChunks implements ports.ChunkSubscriber.
func (t *Telemetry) SubscribeChunks() (ports.ChunkSource, error) {
	s, err := t.Chunks.Subscribe()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AdvertiseAcks implements ports.AckAdvertiser.
func (t *Telemetry) AdvertiseAcks() (ports.AckPublisher, error) {
	p, err := t.Acks.Advertise()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close closes both topics.
func (t *Telemetry) Close() {
	t.Chunks.Close()
	t.Acks.Close()
}
