package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/ulogbridge/internal/adapters/bus"
	"github.com/bft-labs/ulogbridge/internal/clock"
	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/wire"
)

// recordingLink implements ports.Link by recording every message.
type recordingLink struct {
	mu   sync.Mutex
	sent []wire.Message
	err  error
}

func (l *recordingLink) Send(m wire.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, m)
	return l.err
}

func (l *recordingLink) Sent() []wire.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wire.Message(nil), l.sent...)
}

func (l *recordingLink) Reset() {
	l.mu.Lock()
	l.sent = nil
	l.mu.Unlock()
}

type harness struct {
	t       *testing.T
	tel     *bus.Telemetry
	clock   *clock.FakeClock
	manager *Manager
	link    *recordingLink
	logger  *mockLogger
	acks    *bus.Subscription[domain.AckEvent]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tel := bus.NewTelemetry()
	t.Cleanup(tel.Close)
	acks, err := tel.Acks.Subscribe()
	if err != nil {
		t.Fatalf("subscribe acks: %v", err)
	}
	clk := clock.Fake(epoch)
	logger := &mockLogger{}
	return &harness{
		t:       t,
		tel:     tel,
		clock:   clk,
		manager: NewManager(tel, tel, WithClock(clk), WithLogger(logger)),
		link:    &recordingLink{},
		logger:  logger,
		acks:    acks,
	}
}

// start creates a bridge that has completed its handshake.
func (h *harness) start() *Bridge {
	h.t.Helper()
	b, err := h.manager.TryStart()
	if err != nil {
		h.t.Fatalf("TryStart: %v", err)
	}
	b.HandshakeReceived()
	return b
}

func (h *harness) publish(seq uint16, needsAck bool) domain.LogChunk {
	c := domain.LogChunk{Sequence: seq, Length: domain.ChunkDataLen, NeedsAck: needsAck}
	for i := range c.Data {
		c.Data[i] = byte(int(seq) + i)
	}
	h.tel.Chunks.Publish(c)
	return c
}

func (h *harness) events() []domain.AckEvent {
	var out []domain.AckEvent
	for {
		ev, ok := h.acks.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func dataMsg(c domain.LogChunk) wire.Message {
	return &common.MessageLoggingData{Sequence: c.Sequence, Length: c.Length, FirstMessageOffset: c.FirstMessageOffset, Data: c.Data}
}

func ackedMsg(c domain.LogChunk) wire.Message {
	return &common.MessageLoggingDataAcked{Sequence: c.Sequence, Length: c.Length, FirstMessageOffset: c.FirstMessageOffset, Data: c.Data}
}

func mustTick(t *testing.T, b *Bridge, link *recordingLink, want UpdateResult) {
	t.Helper()
	got, err := b.HandleUpdate(link)
	if err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}
	if got != want {
		t.Fatalf("HandleUpdate() = %v, want %v", got, want)
	}
}

func TestUpdateResult_String(t *testing.T) {
	tests := []struct {
		r    UpdateResult
		want string
	}{
		{UpdateIdle, "Idle"},
		{UpdateSent, "Sent"},
		{UpdateWaiting, "Waiting"},
		{UpdateRetransmitted, "Retransmitted"},
		{UpdateFailed, "Failed"},
		{UpdateResult(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("UpdateResult(%d).String() = %s, want %s", tt.r, got, tt.want)
		}
	}
}

func TestBridge_HandshakeGateHoldsChunks(t *testing.T) {
	h := newHarness(t)
	b, err := h.manager.TryStart()
	if err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	h.publish(1, false)

	h.clock.Advance(domain.HandshakeGrace)
	mustTick(t, b, h.link, UpdateWaiting)
	if n := len(h.link.Sent()); n != 0 {
		t.Fatalf("sent %d messages before handshake", n)
	}

	b.HandshakeReceived()
	mustTick(t, b, h.link, UpdateSent)
	if n := len(h.link.Sent()); n != 1 {
		t.Errorf("sent %d messages after handshake, want 1", n)
	}
}

func TestBridge_HandshakeTimeout(t *testing.T) {
	h := newHarness(t)
	b, _ := h.manager.TryStart()

	h.clock.Advance(domain.HandshakeGrace + time.Microsecond)
	got, err := b.HandleUpdate(h.link)
	if got != UpdateFailed || !errors.Is(err, domain.ErrHandshakeTimeout) {
		t.Fatalf("HandleUpdate() = %v, %v; want Failed, ErrHandshakeTimeout", got, err)
	}
	if b.State() != AckFailed {
		t.Errorf("State() = %v, want Failed", b.State())
	}
	if w := h.logger.Warnings(); len(w) != 1 {
		t.Errorf("warnings = %q, want exactly one", w)
	}

	// Terminal: a late handshake does not revive the session.
	b.HandshakeReceived()
	h.publish(1, false)
	if _, err := b.HandleUpdate(h.link); !errors.Is(err, domain.ErrHandshakeTimeout) {
		t.Errorf("second HandleUpdate() error = %v, want ErrHandshakeTimeout", err)
	}
	if n := len(h.link.Sent()); n != 0 {
		t.Errorf("failed bridge sent %d messages", n)
	}
}

func TestBridge_BestEffortChunksNeverBlock(t *testing.T) {
	h := newHarness(t)
	b := h.start()

	var want []wire.Message
	for seq := uint16(1); seq <= 5; seq++ {
		want = append(want, dataMsg(h.publish(seq, false)))
	}
	mustTick(t, b, h.link, UpdateSent)

	if diff := cmp.Diff(want, h.link.Sent()); diff != "" {
		t.Errorf("sent messages mismatch (-want +got):\n%s", diff)
	}
	if b.State() != AckIdle {
		t.Errorf("State() = %v, want Idle", b.State())
	}
	mustTick(t, b, h.link, UpdateIdle)
}

func TestBridge_StopAndWait(t *testing.T) {
	h := newHarness(t)
	b := h.start()

	first := h.publish(1, true)
	second := h.publish(2, false)
	third := h.publish(3, true)
	fourth := h.publish(4, false)

	mustTick(t, b, h.link, UpdateSent)
	if diff := cmp.Diff([]wire.Message{ackedMsg(first)}, h.link.Sent()); diff != "" {
		t.Fatalf("first tick mismatch (-want +got):\n%s", diff)
	}

	// No ack, no timeout: nothing else goes out.
	h.clock.Advance(domain.AckTimeout)
	mustTick(t, b, h.link, UpdateWaiting)
	if n := len(h.link.Sent()); n != 1 {
		t.Fatalf("sent %d messages while waiting, want 1", n)
	}

	if !b.HandleAck(1) {
		t.Fatal("HandleAck(1) = false")
	}
	h.link.Reset()
	mustTick(t, b, h.link, UpdateSent)
	if diff := cmp.Diff([]wire.Message{dataMsg(second), ackedMsg(third)}, h.link.Sent()); diff != "" {
		t.Fatalf("second tick mismatch (-want +got):\n%s", diff)
	}

	if !b.HandleAck(3) {
		t.Fatal("HandleAck(3) = false")
	}
	h.link.Reset()
	mustTick(t, b, h.link, UpdateSent)
	if diff := cmp.Diff([]wire.Message{dataMsg(fourth)}, h.link.Sent()); diff != "" {
		t.Errorf("third tick mismatch (-want +got):\n%s", diff)
	}
}

func TestBridge_ScenarioA_AckBeforeTimeout(t *testing.T) {
	h := newHarness(t)
	b := h.start()
	h.publish(5, true)
	mustTick(t, b, h.link, UpdateSent)

	h.clock.Advance(20 * time.Millisecond)
	ackTime := h.clock.Now()
	if !b.HandleAck(5) {
		t.Fatal("HandleAck(5) = false")
	}
	if b.HandleAck(5) {
		t.Error("duplicate HandleAck(5) = true")
	}

	want := []domain.AckEvent{{Sequence: 5, Timestamp: ackTime}}
	if diff := cmp.Diff(want, h.events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	mustTick(t, b, h.link, UpdateIdle)
	if b.State() != AckIdle {
		t.Errorf("State() = %v, want Idle", b.State())
	}
	if s := b.Stats(); s.Acks != 1 || s.StaleAcks != 1 {
		t.Errorf("Stats() = %+v, want 1 ack and 1 stale", s)
	}
}

func TestBridge_ScenarioB_RetransmitUntilCeiling(t *testing.T) {
	h := newHarness(t)
	b := h.start()
	chunk := h.publish(7, true)
	h.publish(8, false)

	mustTick(t, b, h.link, UpdateSent)

	for try := 2; try <= domain.AckMaxTries; try++ {
		h.clock.Advance(domain.AckTimeout + time.Millisecond)
		mustTick(t, b, h.link, UpdateRetransmitted)
	}

	h.clock.Advance(domain.AckTimeout + time.Millisecond)
	got, err := b.HandleUpdate(h.link)
	if got != UpdateFailed || !errors.Is(err, domain.ErrAckTimeout) {
		t.Fatalf("HandleUpdate() = %v, %v; want Failed, ErrAckTimeout", got, err)
	}

	sent := h.link.Sent()
	if len(sent) != domain.AckMaxTries {
		t.Fatalf("sent %d messages, want %d", len(sent), domain.AckMaxTries)
	}
	for i, m := range sent {
		if diff := cmp.Diff(ackedMsg(chunk), m); diff != "" {
			t.Fatalf("send %d differs from the original (-want +got):\n%s", i, diff)
		}
	}

	// Nothing more for this session, not even the queued best-effort chunk.
	h.clock.Advance(time.Second)
	if _, err := b.HandleUpdate(h.link); !errors.Is(err, domain.ErrAckTimeout) {
		t.Errorf("HandleUpdate() after failure error = %v, want ErrAckTimeout", err)
	}
	if b.HandleAck(7) {
		t.Error("HandleAck(7) after failure = true")
	}
	if n := len(h.link.Sent()); n != domain.AckMaxTries {
		t.Errorf("sent %d messages after failure, want %d", n, domain.AckMaxTries)
	}
	if !errors.Is(b.Err(), domain.ErrAckTimeout) {
		t.Errorf("Err() = %v, want ErrAckTimeout", b.Err())
	}
}

func TestBridge_AckAfterRetransmit(t *testing.T) {
	h := newHarness(t)
	b := h.start()
	h.publish(1, true)
	next := h.publish(2, false)

	mustTick(t, b, h.link, UpdateSent)
	h.clock.Advance(domain.AckTimeout + time.Millisecond)
	mustTick(t, b, h.link, UpdateRetransmitted)

	if !b.HandleAck(1) {
		t.Fatal("HandleAck(1) = false after retransmit")
	}
	h.link.Reset()
	mustTick(t, b, h.link, UpdateSent)
	if diff := cmp.Diff([]wire.Message{dataMsg(next)}, h.link.Sent()); diff != "" {
		t.Errorf("tick after ack mismatch (-want +got):\n%s", diff)
	}
}

func TestBridge_ScenarioC_StaleAcks(t *testing.T) {
	h := newHarness(t)
	b := h.start()

	if b.HandleAck(9) {
		t.Error("HandleAck(9) with nothing outstanding = true")
	}
	if b.State() != AckIdle {
		t.Errorf("State() = %v, want Idle", b.State())
	}

	h.publish(10, true)
	mustTick(t, b, h.link, UpdateSent)
	if b.HandleAck(9) {
		t.Error("HandleAck(9) while waiting on 10 = true")
	}
	if b.State() != AckWaiting {
		t.Errorf("State() = %v, want WaitingForAck", b.State())
	}
	if ev := h.events(); len(ev) != 0 {
		t.Errorf("stale acks published %v", ev)
	}
	mustTick(t, b, h.link, UpdateWaiting)
}

func TestBridge_SequenceWrap(t *testing.T) {
	h := newHarness(t)
	b := h.start()

	h.publish(65535, true)
	mustTick(t, b, h.link, UpdateSent)
	if !b.HandleAck(65535) {
		t.Fatal("HandleAck(65535) = false")
	}
	h.publish(0, true)
	mustTick(t, b, h.link, UpdateSent)
	if b.HandleAck(65535) {
		t.Error("HandleAck(65535) resolved the wait on 0")
	}
	if !b.HandleAck(0) {
		t.Error("HandleAck(0) = false")
	}
}

func TestBridge_SendErrorsAreLoss(t *testing.T) {
	h := newHarness(t)
	b := h.start()
	h.link.err = errors.New("link down")

	h.publish(1, true)
	mustTick(t, b, h.link, UpdateSent)
	h.clock.Advance(domain.AckTimeout + time.Millisecond)
	mustTick(t, b, h.link, UpdateRetransmitted)

	s := b.Stats()
	if s.SendErrors != 2 || s.Retransmits != 1 || s.AckedSent != 2 {
		t.Errorf("Stats() = %+v, want 2 send errors, 1 retransmit, 2 acked sends", s)
	}
}
