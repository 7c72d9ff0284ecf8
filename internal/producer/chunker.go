package producer

import (
	"github.com/bft-labs/ulogbridge/internal/domain"
)

// Chunker packs a byte stream of ULog messages into fixed-size chunks.
type Chunker struct {
	emit func(domain.LogChunk) error

	seq      uint16
	cur      domain.LogChunk
	n        int
	needsAck bool
}

// NewChunker calls emit for every completed chunk. Sequence numbers start
// at zero and wrap.
func NewChunker(emit func(domain.LogChunk) error) *Chunker {
	c := &Chunker{emit: emit}
	c.reset()
	return c
}

func (c *Chunker) reset() {
	c.cur = domain.LogChunk{FirstMessageOffset: domain.NoMessageStart}
	c.n = 0
}

// WriteHeader appends the file header. It never marks a message start.
func (c *Chunker) WriteHeader(raw []byte, needsAck bool) error {
	return c.write(raw, needsAck, false)
}

// WriteMessage appends one whole ULog message. A change of reliability
// flushes the pending chunk first so no chunk mixes both kinds.
func (c *Chunker) WriteMessage(raw []byte, needsAck bool) error {
	return c.write(raw, needsAck, true)
}

func (c *Chunker) write(raw []byte, needsAck, messageStart bool) error {
	if c.n > 0 && needsAck != c.needsAck {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.needsAck = needsAck

	// A full chunk is always flushed, so c.n is a valid offset here.
	if messageStart && c.cur.FirstMessageOffset == domain.NoMessageStart {
		c.cur.FirstMessageOffset = uint8(c.n)
	}

	for len(raw) > 0 {
		k := copy(c.cur.Data[c.n:], raw)
		c.n += k
		raw = raw[k:]
		if c.n == len(c.cur.Data) {
			if err := c.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush emits the pending chunk, if any.
func (c *Chunker) Flush() error {
	if c.n == 0 {
		return nil
	}
	chunk := c.cur
	chunk.Sequence = c.seq
	chunk.Length = uint8(c.n)
	chunk.NeedsAck = c.needsAck
	c.seq++
	c.reset()
	return c.emit(chunk)
}

// Pending returns the number of buffered bytes.
func (c *Chunker) Pending() int { return c.n }
