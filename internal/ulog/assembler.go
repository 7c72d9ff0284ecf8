package ulog

import (
	"io"
)

// NoMessageStart marks a chunk in which no message begins.
const NoMessageStart = 255

// Assembler rebuilds a ULog file from received chunk payloads, in arrival
// order, with drop counts supplied by the caller's sequence tracking.
//
// Whole messages are written as soon as they are complete. A message split
// across chunks is carried until its tail arrives. On a drop the partial
// message is discarded and writing resumes at the next message start in
// the chunk; once the data section has begun a dropout message records the
// gap.
type Assembler struct {
	w io.Writer

	gotHeader  bool
	inData     bool
	partial    []byte
	dropouts   uint64
	bytesOut   uint64
	messageOut uint64
}

// NewAssembler writes the reassembled file to w.
func NewAssembler(w io.Writer) *Assembler {
	return &Assembler{w: w}
}

// EnterDataSection marks that best-effort data has started to arrive. Only
// drops after this point produce dropout messages.
func (a *Assembler) EnterDataSection() { a.inData = true }

// InDataSection reports whether EnterDataSection was called.
func (a *Assembler) InDataSection() bool { return a.inData }

// Dropouts returns the total number of dropped chunks reported to Feed.
func (a *Assembler) Dropouts() uint64 { return a.dropouts }

// BytesWritten returns the number of bytes written to the output.
func (a *Assembler) BytesWritten() uint64 { return a.bytesOut }

// Messages returns the number of whole messages written.
func (a *Assembler) Messages() uint64 { return a.messageOut }

// Feed processes one chunk payload. first is the offset of the first
// message start in data, or NoMessageStart. drops is the number of chunks
// lost immediately before this one.
func (a *Assembler) Feed(data []byte, first uint8, drops int) error {
	offset := int(first)

	if !a.gotHeader {
		if _, err := ParseHeader(data); err != nil {
			return err
		}
		if err := a.write(data[:HeaderLen]); err != nil {
			return err
		}
		data = data[HeaderLen:]
		a.gotHeader = true
		// The first message follows the header directly.
		if offset != NoMessageStart {
			offset -= HeaderLen
			if offset < 0 {
				offset = 0
			}
		}
	}
	if offset != NoMessageStart && offset > len(data) {
		offset = len(data)
	}

	if drops > 0 {
		a.dropouts += uint64(drops)
		if a.inData {
			if err := a.write(DropoutMessage(drops)); err != nil {
				return err
			}
		}
		a.partial = a.partial[:0]
		if offset == NoMessageStart {
			return nil
		}
		data = data[offset:]
		offset = 0
	}

	if offset == NoMessageStart {
		// Middle of a long message, or nothing to resynchronise on.
		if len(a.partial) > 0 {
			a.partial = append(a.partial, data...)
		}
		return nil
	}

	if len(a.partial) > 0 {
		a.partial = append(a.partial, data[:offset]...)
		if err := a.write(a.partial); err != nil {
			return err
		}
		a.messageOut++
		a.partial = a.partial[:0]
	}

	rest := data[offset:]
	n, err := a.writeMessages(rest)
	if err != nil {
		return err
	}
	a.partial = append(a.partial[:0], rest[n:]...)
	return nil
}

// writeMessages writes the whole messages at the start of b and returns
// the number of bytes consumed.
func (a *Assembler) writeMessages(b []byte) (int, error) {
	consumed := 0
	for {
		n, ok := MessageLen(b[consumed:])
		if !ok || consumed+n > len(b) {
			return consumed, nil
		}
		if err := a.write(b[consumed : consumed+n]); err != nil {
			return consumed, err
		}
		a.messageOut++
		consumed += n
	}
}

func (a *Assembler) write(b []byte) error {
	n, err := a.w.Write(b)
	a.bytesOut += uint64(n)
	return err
}
