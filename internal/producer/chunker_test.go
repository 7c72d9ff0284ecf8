package producer

import (
	"bytes"
	"testing"

	"github.com/bft-labs/ulogbridge/internal/domain"
	"github.com/bft-labs/ulogbridge/internal/ulog"
)

func collectChunks(out *[]domain.LogChunk) func(domain.LogChunk) error {
	return func(c domain.LogChunk) error {
		*out = append(*out, c)
		return nil
	}
}

func message(t *testing.T, typ byte, size int) []byte {
	t.Helper()
	payload := bytes.Repeat([]byte{typ}, size)
	m, err := ulog.AppendMessage(nil, typ, payload)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return m
}

func TestChunker_Offsets(t *testing.T) {
	var chunks []domain.LogChunk
	c := NewChunker(collectChunks(&chunks))

	header := ulog.AppendHeader(nil, ulog.Header{Version: 1})
	long := message(t, ulog.TypeFormat, 600) // spans three chunks
	short := message(t, ulog.TypeInfo, 10)

	if err := c.WriteHeader(header, true); err != nil {
		t.Fatal(err)
	}
	for _, m := range [][]byte{long, short} {
		if err := c.WriteMessage(m, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantFirst := []uint8{
		ulog.HeaderLen,        // the long message follows the header
		domain.NoMessageStart, // middle of the long message
		uint8((ulog.HeaderLen + len(long)) - 2*domain.ChunkDataLen),
	}
	var stream []byte
	for i, ch := range chunks {
		if ch.Sequence != uint16(i) {
			t.Errorf("chunk %d sequence = %d", i, ch.Sequence)
		}
		if !ch.NeedsAck {
			t.Errorf("chunk %d not acked", i)
		}
		if ch.FirstMessageOffset != wantFirst[i] {
			t.Errorf("chunk %d first offset = %d, want %d", i, ch.FirstMessageOffset, wantFirst[i])
		}
		stream = append(stream, ch.Payload()...)
	}
	want := append(append(append([]byte(nil), header...), long...), short...)
	if !bytes.Equal(stream, want) {
		t.Error("chunk payloads do not reproduce the input stream")
	}
}

func TestChunker_ReliabilityChangeFlushes(t *testing.T) {
	var chunks []domain.LogChunk
	c := NewChunker(collectChunks(&chunks))

	_ = c.WriteMessage(message(t, ulog.TypeFormat, 20), true)
	_ = c.WriteMessage(message(t, ulog.TypeAddLoggedMsg, 20), false)
	_ = c.WriteMessage(message(t, ulog.TypeData, 20), false)
	if c.Pending() != 46 {
		t.Errorf("Pending() = %d, want 46", c.Pending())
	}
	_ = c.Flush()
	_ = c.Flush() // no-op

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !chunks[0].NeedsAck || chunks[0].Length != 23 {
		t.Errorf("chunk 0 = acked %v, length %d; want acked, 23", chunks[0].NeedsAck, chunks[0].Length)
	}
	if chunks[1].NeedsAck || chunks[1].Length != 46 || chunks[1].FirstMessageOffset != 0 {
		t.Errorf("chunk 1 = acked %v, length %d, first %d; want best-effort, 46, 0",
			chunks[1].NeedsAck, chunks[1].Length, chunks[1].FirstMessageOffset)
	}
}

func TestChunker_SequenceWraps(t *testing.T) {
	var chunks []domain.LogChunk
	c := NewChunker(collectChunks(&chunks))
	c.seq = 65535

	_ = c.WriteMessage(message(t, ulog.TypeData, domain.ChunkDataLen), false)
	_ = c.Flush()

	if len(chunks) != 2 || chunks[0].Sequence != 65535 || chunks[1].Sequence != 0 {
		t.Errorf("sequences = %v", chunks)
	}
}
