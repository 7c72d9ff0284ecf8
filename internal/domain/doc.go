// Package domain contains the core entities and protocol constants of
// ulogbridge.
//
// It has no dependencies on infrastructure (sockets, files, logging) and
// holds only value types and pure rules.
//
// # Entities
//
//   - [LogChunk]: a sequenced fragment of a ULog stream, copied by value
//   - [AckEvent]: a completion event published once a chunk is acknowledged
//   - [SequenceVerdict]: the receiver-side classification of a sequence number
//
// # Protocol constants
//
// [AckTimeout], [AckMaxTries] and [HandshakeGrace] are fixed by design.
// They are not configuration.
package domain
