package domain

import "time"

// ChunkDataLen is the fixed payload size of a chunk. It must equal the
// data field of LOGGING_DATA and LOGGING_DATA_ACKED; the bridge checks this at
// build time.
const ChunkDataLen = 249

// NoMessageStart is the FirstMessageOffset value of a chunk in which no
// ULog message begins.
const NoMessageStart = 255

// LogChunk is one sequenced fragment of the log stream.
type LogChunk struct {
	// Sequence increments by one per chunk and wraps at 2^16.
	Sequence uint16

	// Length is the number of valid bytes in Data.
	Length uint8

	// FirstMessageOffset is the offset in Data of the first message that
	// starts in this chunk, or NoMessageStart.
	FirstMessageOffset uint8

	Data [ChunkDataLen]byte

	// NeedsAck selects the acknowledged wire variant and stop-and-wait
	// delivery. Best-effort chunks are never retransmitted.
	NeedsAck bool
}

// Payload returns the valid portion of Data.
func (c *LogChunk) Payload() []byte {
	return c.Data[:c.Length]
}

// AckEvent is published once per acknowledged chunk so the producer can
// observe end-to-end delivery. Subscribers must treat duplicates as
// idempotent.
type AckEvent struct {
	Sequence  uint16
	Timestamp time.Time
}
