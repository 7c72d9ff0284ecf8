package app

import (
	"time"

	"github.com/bft-labs/ulogbridge/internal/domain"
)

// AckState is the state of a bridge's outstanding-chunk tracker.
type AckState int

const (
	AckAwaitingHandshake AckState = iota
	AckIdle
	AckWaiting
	AckFailed
)

// String returns a human-readable representation of the state.
func (s AckState) String() string {
	switch s {
	case AckAwaitingHandshake:
		return "AwaitingHandshake"
	case AckIdle:
		return "Idle"
	case AckWaiting:
		return "WaitingForAck"
	case AckFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// timeoutAction is what the sender loop must do after onTimeout.
type timeoutAction int

const (
	timeoutPending timeoutAction = iota
	timeoutRetransmit
	timeoutExhausted
)

// ackTracker holds the single outstanding acknowledged chunk.
// It is not safe for concurrent use; the bridge guards it with the
// manager lock.
type ackTracker struct {
	state           AckState
	waitingSequence uint16
	sentAt          time.Time
	retryCount      int
	acknowledged    bool
}

// handshake leaves AwaitingHandshake. Reports whether the state changed.
func (t *ackTracker) handshake() bool {
	if t.state != AckAwaitingHandshake {
		return false
	}
	t.state = AckIdle
	return true
}

// beginWait starts waiting for seq. The first transmission counts as try 1.
func (t *ackTracker) beginWait(seq uint16, now time.Time) error {
	if t.state != AckIdle {
		return domain.ErrAckPending
	}
	t.state = AckWaiting
	t.waitingSequence = seq
	t.sentAt = now
	t.retryCount = 1
	t.acknowledged = false
	return nil
}

// onTimeout advances the retry counter once more than ackTimeout has
// passed since the last transmission.
func (t *ackTracker) onTimeout(now time.Time, ackTimeout time.Duration, maxTries int) timeoutAction {
	if t.state != AckWaiting || t.acknowledged {
		return timeoutPending
	}
	if now.Sub(t.sentAt) <= ackTimeout {
		return timeoutPending
	}
	if t.retryCount+1 > maxTries {
		t.state = AckFailed
		return timeoutExhausted
	}
	t.retryCount++
	t.sentAt = now
	return timeoutRetransmit
}

// resolve marks the outstanding chunk acknowledged if seq matches it.
// A sequence is resolved at most once per wait.
func (t *ackTracker) resolve(seq uint16) bool {
	if t.state != AckWaiting || t.acknowledged || seq != t.waitingSequence {
		return false
	}
	t.acknowledged = true
	return true
}

// settle returns a resolved wait to Idle.
func (t *ackTracker) settle() bool {
	if t.state != AckWaiting || !t.acknowledged {
		return false
	}
	t.state = AckIdle
	return true
}

// isBlocking reports whether new chunks must be held back.
func (t *ackTracker) isBlocking() bool {
	return t.state == AckWaiting && !t.acknowledged
}

// fail moves the tracker to the terminal state.
func (t *ackTracker) fail() {
	t.state = AckFailed
}
