package mavlink

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/wire"
	logAdapter "github.com/bft-labs/ulogbridge/pkg/log"
)

// freeAddr returns a loopback UDP address nobody is bound to.
func freeAddr(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()
	return addr
}

func open(t *testing.T, cfg Config) *Link {
	t.Helper()
	l, err := Open(cfg, logAdapter.NewNoopLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// pair opens a vehicle serving on a free port and a ground client of it.
func pair(t *testing.T) (vehicle, ground *Link) {
	t.Helper()
	addr := freeAddr(t)
	vehicle = open(t, Config{Listen: addr, SystemID: VehicleSystemID})
	ground = open(t, Config{Peer: addr, SystemID: GroundSystemID})
	return vehicle, ground
}

// serve runs l.Serve and forwards messages to the returned channel.
func serve(ctx context.Context, l *Link) (<-chan wire.Message, <-chan error) {
	msgs := make(chan wire.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(ctx, func(m wire.Message) {
			select {
			case msgs <- m:
			default:
			}
		})
	}()
	return msgs, done
}

// receive returns the first message accepted by match. Heartbeats and
// other traffic in between are skipped.
func receive(t *testing.T, msgs <-chan wire.Message, match func(wire.Message) bool) wire.Message {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m := <-msgs:
			if match(m) {
				return m
			}
		case <-timeout:
			t.Fatal("no matching message received")
			return nil
		}
	}
}

func isCommandLong(m wire.Message) bool {
	_, ok := m.(*common.MessageCommandLong)
	return ok
}

func isCommandAck(m wire.Message) bool {
	_, ok := m.(*common.MessageCommandAck)
	return ok
}

func isData(m wire.Message) bool {
	_, ok := wire.Chunk(m)
	return ok
}

// sendUntil repeats send until match sees a message on msgs. The client
// channel may open after the first send.
func sendUntil(t *testing.T, l *Link, msg wire.Message, msgs <-chan wire.Message, match func(wire.Message) bool) wire.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := l.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
		select {
		case m := <-msgs:
			if match(m) {
				return m
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("message never arrived")
	return nil
}

func TestOpen_RequiresEndpoint(t *testing.T) {
	if _, err := Open(Config{}, logAdapter.NewNoopLogger()); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("Open() = %v, want ErrNoEndpoint", err)
	}
}

func TestLink_Exchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vehicle, ground := pair(t)
	vehicleIn, _ := serve(ctx, vehicle)
	groundIn, _ := serve(ctx, ground)

	got := sendUntil(t, ground, wire.Start(), vehicleIn, isCommandLong)
	if diff := cmp.Diff(wire.Message(wire.Start()), got); diff != "" {
		t.Fatalf("vehicle received mismatch (-want +got):\n%s", diff)
	}

	// The vehicle answers on the channel the command opened.
	ack := wire.CommandAck(common.MAV_CMD_LOGGING_START, common.MAV_RESULT_ACCEPTED)
	if err := vehicle.Send(ack); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(wire.Message(ack), receive(t, groundIn, isCommandAck)); diff != "" {
		t.Errorf("ground received mismatch (-want +got):\n%s", diff)
	}

	chunk := domain.LogChunk{Sequence: 9, Length: 3, FirstMessageOffset: 1, NeedsAck: true}
	copy(chunk.Data[:], []byte{1, 2, 3})
	if err := vehicle.Send(wire.Data(&chunk)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	gotChunk, _ := wire.Chunk(receive(t, groundIn, isData))
	if diff := cmp.Diff(chunk, gotChunk); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}

	if s := vehicle.Stats(); s.Sent != 2 || s.SentBytes != uint64(wire.FrameLen(ack)+wire.MaxFrameLen) || s.Received == 0 {
		t.Errorf("vehicle Stats() = %+v", s)
	}
}

func TestLink_BandwidthBudget(t *testing.T) {
	tx := open(t, Config{Peer: freeAddr(t), Rate: 1, Burst: 0})

	chunk := domain.LogChunk{Sequence: 1, Length: domain.ChunkDataLen}
	for i := 0; i < 3; i++ {
		if err := tx.Send(wire.Data(&chunk)); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if s := tx.Stats(); s.Sent != 1 || s.OverBudget != 2 {
		t.Errorf("Stats() = %+v, want 1 sent and 2 over budget", s)
	}
}

func TestLink_ServeAgainAfterCancel(t *testing.T) {
	vehicle, ground := pair(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := vehicle.Serve(ctx, func(wire.Message) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() = %v, want context.Canceled", err)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	vehicleIn, _ := serve(ctx2, vehicle)
	got := sendUntil(t, ground, wire.Stop(), vehicleIn, isCommandLong)
	if diff := cmp.Diff(wire.Message(wire.Stop()), got); diff != "" {
		t.Errorf("second Serve received mismatch (-want +got):\n%s", diff)
	}
}

func TestLink_ServeStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := open(t, Config{Listen: freeAddr(t)})
	_, done := serve(ctx, l)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	l2, err := Open(Config{Listen: freeAddr(t)}, logAdapter.NewNoopLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, done2 := serve(context.Background(), l2)
	time.Sleep(10 * time.Millisecond)
	l2.Close()
	select {
	case err := <-done2:
		if err != nil {
			t.Errorf("Serve() after Close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
