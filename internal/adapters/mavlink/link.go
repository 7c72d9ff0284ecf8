// Package mavlink implements ports.Transport on a gomavlib node, with a
// bandwidth budget modelling a constrained radio link.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"golang.org/x/time/rate"

	"github.com/bft-labs/ulogbridge/internal/ports"
	"github.com/bft-labs/ulogbridge/internal/wire"
)

// Default MAVLink system ids of the two ends.
const (
	VehicleSystemID = 1
	GroundSystemID  = 255
)

// ErrNoEndpoint is returned by Open when neither Listen nor Peer is set.
var ErrNoEndpoint = errors.New("mavlink: no endpoint configured")

// Config contains configuration for a link.
type Config struct {
	// Listen is a local UDP address ("host:port") peers connect to.
	Listen string

	// Peer is a remote UDP address ("host:port") to connect to.
	Peer string

	// SystemID is the MAVLink system id of outgoing frames.
	SystemID byte

	// Rate is the send budget in bytes per second. Zero disables it.
	Rate int

	// Burst is the budget bucket size in bytes. It is raised to at least
	// one maximum-size frame.
	Burst int
}

// Stats is a snapshot of the link counters.
type Stats struct {
	Sent         uint64
	SentBytes    uint64
	OverBudget   uint64
	Received     uint64
	DecodeErrors uint64
	Channels     int64
}

// Link exchanges MAVLink v2 frames of the common dialect with every
// connected peer.
type Link struct {
	node    *gomavlib.Node
	limiter *rate.Limiter
	logger  ports.Logger

	sent, sentBytes, overBudget, received, decodeErrors atomic.Uint64
	channels                                            atomic.Int64
}

// Open starts a node with a UDP server on cfg.Listen and a UDP client to
// cfg.Peer, whichever are set.
func Open(cfg Config, logger ports.Logger) (*Link, error) {
	var endpoints []gomavlib.EndpointConf
	if cfg.Listen != "" {
		endpoints = append(endpoints, gomavlib.EndpointUDPServer{Address: cfg.Listen})
	}
	if cfg.Peer != "" {
		endpoints = append(endpoints, gomavlib.EndpointUDPClient{Address: cfg.Peer})
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoint
	}
	if cfg.SystemID == 0 {
		cfg.SystemID = VehicleSystemID
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   endpoints,
		Dialect:     wire.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: cfg.SystemID,
	})
	if err != nil {
		return nil, fmt.Errorf("open mavlink node: %w", err)
	}

	l := &Link{node: node, logger: logger}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < wire.MaxFrameLen {
			burst = wire.MaxFrameLen
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return l, nil
}

// Send writes msg to every connected peer. Frames over the bandwidth
// budget are dropped silently, as the radio would lose them.
func (l *Link) Send(msg wire.Message) error {
	n := wire.FrameLen(msg)
	if l.limiter != nil && !l.limiter.AllowN(time.Now(), n) {
		l.overBudget.Add(1)
		return nil
	}
	if err := l.node.WriteMessageAll(msg); err != nil {
		return err
	}
	l.sent.Add(1)
	l.sentBytes.Add(uint64(n))
	return nil
}

// Serve implements ports.Transport. It returns ctx.Err() once ctx is done
// and nil if the link was closed. A link may be served again after a
// cancelled Serve returned.
func (l *Link) Serve(ctx context.Context, handler ports.MessageHandler) error {
	events := l.node.Events()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-events:
			if !ok {
				return nil
			}
			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				l.received.Add(1)
				handler(e.Message())

			case *gomavlib.EventParseError:
				l.decodeErrors.Add(1)
				l.logger.Debug("dropping undecodable frame",
					ports.String("channel", fmt.Sprint(e.Channel)),
					ports.Err(e.Error))

			case *gomavlib.EventChannelOpen:
				l.channels.Add(1)
				l.logger.Info("peer connected", ports.String("channel", fmt.Sprint(e.Channel)))

			case *gomavlib.EventChannelClose:
				l.channels.Add(-1)
				l.logger.Info("peer disconnected", ports.String("channel", fmt.Sprint(e.Channel)))
			}
		}
	}
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		Sent:         l.sent.Load(),
		SentBytes:    l.sentBytes.Load(),
		OverBudget:   l.overBudget.Load(),
		Received:     l.received.Load(),
		DecodeErrors: l.decodeErrors.Load(),
		Channels:     l.channels.Load(),
	}
}

// Close stops the node and its endpoints.
func (l *Link) Close() error {
	l.node.Close()
	return nil
}
