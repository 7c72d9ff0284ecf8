package ports

import (
	"context"

	"github.com/bft-labs/ulogbridge/internal/wire"
)

// Link transmits messages to the peer. Send must not block for longer than
// a local write; delivery is not guaranteed.
type Link interface {
	Send(msg wire.Message) error
}

// MessageHandler receives decoded inbound messages.
type MessageHandler func(msg wire.Message)

// Transport is a bidirectional link.
type Transport interface {
	Link

	// Serve reads inbound messages and calls handler for each until ctx is
	// done or the transport fails. Undecodable frames are skipped.
	Serve(ctx context.Context, handler MessageHandler) error
}
