package domain

import "errors"

// Domain errors returned by the bridge and its lifecycle. Check with errors.Is.
var (
	// ErrSubscriptionFailed is logged when a bridge cannot attach to the
	// chunk topic. The bridge is still created but never yields chunks.
	ErrSubscriptionFailed = errors.New("ulogbridge: chunk subscription failed")

	// ErrHandshakeTimeout is returned by the sender loop when the local log
	// producer did not confirm within HandshakeGrace. Fatal to the session.
	ErrHandshakeTimeout = errors.New("ulogbridge: no response from local log producer")

	// ErrAckTimeout is returned by the sender loop when an acknowledged
	// chunk exceeded AckMaxTries. Fatal to the session.
	ErrAckTimeout = errors.New("ulogbridge: ack timeout")

	// ErrAllocationFailed is returned by TryStart when a session could not
	// be created.
	ErrAllocationFailed = errors.New("ulogbridge: session allocation failed")

	// ErrAlreadyStreaming is returned by TryStart while another session is
	// active. It is a coordination outcome, not a fault.
	ErrAlreadyStreaming = errors.New("ulogbridge: already streaming")

	// ErrNotStreaming is returned by Stop for a handle that is not the
	// active session.
	ErrNotStreaming = errors.New("ulogbridge: not streaming")

	// ErrStopped is returned when a torn-down bridge is used.
	ErrStopped = errors.New("ulogbridge: bridge stopped")

	// ErrAckPending is returned when a new wait begins while another chunk
	// is still outstanding.
	ErrAckPending = errors.New("ulogbridge: ack already pending")

	// ErrNotInitialized is returned by the package-level lifecycle functions
	// before Initialize.
	ErrNotInitialized = errors.New("ulogbridge: not initialized")

	// ErrStartTimeout is returned by the receiver when streaming did not
	// start within its start timeout.
	ErrStartTimeout = errors.New("ulogbridge: start timed out, is the logger streaming?")

	// ErrStartRejected is returned by the receiver when the peer refused
	// the start command.
	ErrStartRejected = errors.New("ulogbridge: start rejected")

	// ErrAlreadyRunning is returned when Start() is called on a running streamer.
	ErrAlreadyRunning = errors.New("ulogbridge: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped streamer.
	ErrNotRunning = errors.New("ulogbridge: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("ulogbridge: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("ulogbridge: invalid configuration")
)
