package domain

import "time"

const (
	// AckTimeout is how long the sender waits for an ack before
	// retransmitting.
	AckTimeout = 50 * time.Millisecond

	// AckMaxTries bounds the number of transmissions of one acknowledged
	// chunk, the first send included.
	AckMaxTries = 50

	// HandshakeGrace is how long a new bridge waits for the local producer
	// to confirm it is running.
	HandshakeGrace = 300 * time.Millisecond

	// AckQueueDepth is the queue length of the completion-event topic.
	AckQueueDepth = 3

	// ChunkQueueDepth is the queue length of the chunk topic.
	ChunkQueueDepth = 16
)
