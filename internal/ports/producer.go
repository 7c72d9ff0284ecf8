package ports

import "context"

// Producer feeds chunks for one streaming session onto the telemetry bus.
type Producer interface {
	// Run produces until ctx is done or the source is exhausted. It calls
	// started exactly once, after it is ready to honour completion events.
	Run(ctx context.Context, started func()) error
}
