// Package ports defines the interfaces that connect the bridge core to its
// collaborators.
//
// # Port Interfaces
//
//   - [ChunkSubscriber] / [ChunkSource]: the telemetry bus side that yields chunks
//   - [AckAdvertiser] / [AckPublisher]: the bus side that receives completion events
//   - [Link] / [Transport]: the wire side that transmits and receives messages
//   - [Producer]: the per-session chunk producer
//   - [Logger]: structured logging
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) provide the in-process bus and the MAVLink link.
package ports
