package ulog

import (
	"bufio"
	"fmt"
	"io"
)

// Reader reads a ULog file message by message.
type Reader struct {
	r      *bufio.Reader
	header bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadHeader reads and validates the file header. It must be called once
// before Next. The raw bytes are returned for forwarding.
func (r *Reader) ReadHeader() (Header, []byte, error) {
	raw := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r.r, raw); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = ErrShortHeader
		}
		return Header{}, nil, err
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}
	r.header = true
	return h, raw, nil
}

// Next returns the next complete message, header included. It returns
// io.EOF at a clean message boundary and io.ErrUnexpectedEOF inside a
// truncated message.
func (r *Reader) Next() ([]byte, error) {
	if !r.header {
		return nil, fmt.Errorf("ulog: Next before ReadHeader")
	}
	var hdr [MessageHeaderLen]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return nil, err
	}
	n, _ := MessageLen(hdr[:])
	msg := make([]byte, n)
	copy(msg, hdr[:])
	if _, err := io.ReadFull(r.r, msg[MessageHeaderLen:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}
