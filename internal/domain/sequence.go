package domain

// SequenceVerdict classifies an inbound sequence number against the last
// one accepted.
type SequenceVerdict int

const (
	// SequenceNewer: deliver; Drops holds the number of skipped sequences.
	SequenceNewer SequenceVerdict = iota
	// SequenceDuplicate: same as the last accepted sequence.
	SequenceDuplicate
	// SequenceReordered: older than the last accepted sequence.
	SequenceReordered
)

// String returns a human-readable representation of the verdict.
func (v SequenceVerdict) String() string {
	switch v {
	case SequenceNewer:
		return "Newer"
	case SequenceDuplicate:
		return "Duplicate"
	case SequenceReordered:
		return "Reordered"
	default:
		return "Unknown"
	}
}

// halfRange splits the uint16 sequence space into "ahead" and "behind".
const halfRange = 1 << 15

// SequenceTracker remembers the last accepted sequence and classifies the
// next one, accounting for wrap-around. The zero value has seen nothing.
type SequenceTracker struct {
	last    uint16
	started bool
}

// Check classifies seq and, for SequenceNewer, advances the tracker.
// drops is the number of sequences skipped between the last accepted one
// and seq.
func (t *SequenceTracker) Check(seq uint16) (verdict SequenceVerdict, drops int) {
	if !t.started {
		t.started = true
		t.last = seq
		return SequenceNewer, 0
	}
	if seq == t.last {
		return SequenceDuplicate, 0
	}
	// uint16 subtraction wraps, giving the forward distance.
	forward := int(seq - t.last)
	if forward > halfRange {
		return SequenceReordered, 0
	}
	t.last = seq
	return SequenceNewer, forward - 1
}

// Last returns the last accepted sequence and whether one exists.
func (t *SequenceTracker) Last() (uint16, bool) {
	return t.last, t.started
}
