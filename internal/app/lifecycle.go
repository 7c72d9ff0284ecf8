package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ports"
)

// ShutdownTimeout bounds how long Run waits for the transport and the
// session producer to exit.
const ShutdownTimeout = 5 * time.Second

// State is the run state of a Streamer.
type State int

const (
	StateStopped State = iota
	StateListening
	StateStreaming
	StateStopping
	StateFailed
)

var stateNames = [...]string{
	StateStopped:   "Stopped",
	StateListening: "Listening",
	StateStreaming: "Streaming",
	StateStopping:  "Stopping",
	StateFailed:    "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the states reachable from each state. Streaming falls
// back to Listening when a session ends; Failed may be re-run.
var transitions = map[State][]State{
	StateStopped:   {StateListening},
	StateListening: {StateStreaming, StateStopping, StateFailed},
	StateStreaming: {StateListening, StateStopping, StateFailed},
	StateStopping:  {StateStopped, StateFailed},
	StateFailed:    {StateListening, StateStopped},
}

// serving reports whether a streamer in s accepts commands.
func (s State) serving() bool {
	return s == StateListening || s == StateStreaming
}

// runState tracks the state of one Streamer, the cancel func of its Run
// and the goroutines Run waits for on the way out.
type runState struct {
	logger ports.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	workers sync.WaitGroup
}

func newRunState(logger ports.Logger) *runState {
	return &runState{logger: logger}
}

func (r *runState) get() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// set moves to state to. Moves missing from transitions fail with
// ErrNotRunning out of Stopped and Failed, ErrAlreadyRunning otherwise.
func (r *runState) set(to State, reason string) error {
	r.mu.Lock()
	from, err := r.setLocked(to)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.logTransition(from, to, reason)
	return nil
}

func (r *runState) setLocked(to State) (State, error) {
	from := r.state
	if !allowed(from, to) {
		sentinel := domain.ErrAlreadyRunning
		if from == StateStopped || from == StateFailed {
			sentinel = domain.ErrNotRunning
		}
		return from, fmt.Errorf("%w: %v to %v", sentinel, from, to)
	}
	r.state = to
	return from, nil
}

func (r *runState) logTransition(from, to State, reason string) {
	r.logger.Info("state transition",
		ports.String("from", from.String()),
		ports.String("to", to.String()),
		ports.String("reason", reason))
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// begin moves a stopped or failed streamer to Listening and keeps cancel
// for stop.
func (r *runState) begin(cancel context.CancelFunc) error {
	r.mu.Lock()
	from, err := r.setLocked(StateListening)
	if err != nil {
		r.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	r.cancel = cancel
	r.mu.Unlock()
	r.logTransition(from, StateListening, "run")
	return nil
}

// stop cancels Run. It reports false when Run is not serving.
func (r *runState) stop() bool {
	if !r.get().serving() {
		return false
	}
	r.cancelRun()
	return true
}

func (r *runState) cancelRun() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// spawn runs fn on a goroutine that wait accounts for.
func (r *runState) spawn(fn func()) {
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		fn()
	}()
}

// wait blocks until every spawned goroutine returned or timeout elapsed.
func (r *runState) wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		r.logger.Warn("workers still running after shutdown timeout",
			ports.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}
