package ports

import "github.com/bft-labs/ulogbridge/internal/domain"

// ChunkSource is a subscription to the chunk topic.
type ChunkSource interface {
	// Next copies the oldest pending chunk. It never blocks; ok is false
	// when nothing is pending or the subscription is closed.
	Next() (chunk domain.LogChunk, ok bool)

	// Close unsubscribes.
	Close() error
}

// ChunkSubscriber creates chunk subscriptions.
type ChunkSubscriber interface {
	SubscribeChunks() (ChunkSource, error)
}

// AckPublisher publishes completion events.
type AckPublisher interface {
	// Publish never blocks.
	Publish(event domain.AckEvent)

	// Close unadvertises the publisher.
	Close() error
}

// AckAdvertiser creates completion-event publishers.
type AckAdvertiser interface {
	AdvertiseAcks() (AckPublisher, error)
}
