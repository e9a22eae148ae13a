package seal

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// HeaderLength is the size of the big-endian length prefix of every frame.
	HeaderLength = 2
	// DefaultMaxFrameLength is the largest body length a frame may declare.
	DefaultMaxFrameLength = 1024
	// maxHeaderValue is the largest length the prefix can carry.
	maxHeaderValue = 1<<16 - 1
)

// Frame is one complete unit taken off the wire.
// Body is owned by the receiver of the Frame and never aliases the
// reassembler's buffer.
type Frame struct {
	// Length is the declared body length exactly as it appeared in the prefix.
	Length uint16
	Body   []byte
}

// Reassembler turns an ordered, arbitrarily fragmented byte stream into
// length-prefixed frames.
type Reassembler struct {
	incoming  []byte
	pending   uint16
	hasLength bool
	maxLength int
}

// NewReassembler returns a Reassembler rejecting frames longer than maxLength.
// A non-positive maxLength selects DefaultMaxFrameLength.
func NewReassembler(maxLength int) *Reassembler {
	if maxLength <= 0 {
		maxLength = DefaultMaxFrameLength
	}
	if maxLength > maxHeaderValue {
		maxLength = maxHeaderValue
	}
	return &Reassembler{maxLength: maxLength}
}

// Feed appends newly arrived bytes.
func (r *Reassembler) Feed(p []byte) {
	r.incoming = append(r.incoming, p...)
}

// Buffered returns the number of bytes not yet consumed into a frame.
func (r *Reassembler) Buffered() int {
	return len(r.incoming)
}

// TakeFrame extracts one complete frame if the buffer holds one.
// ok is false when more bytes are needed; that is not an error.
// A declared length above the limit returns ErrInvalidPacketLength as soon as
// the prefix is visible, without waiting for the body.
func (r *Reassembler) TakeFrame() (frame Frame, ok bool, err error) {
	if !r.hasLength {
		if len(r.incoming) < HeaderLength {
			return Frame{}, false, nil
		}
		r.pending = binary.BigEndian.Uint16(r.incoming[:HeaderLength])
		r.hasLength = true
	}

	if int(r.pending) > r.maxLength {
		return Frame{}, false, protocolError(ErrInvalidPacketLength,
			errors.Errorf("declared %d, limit %d", r.pending, r.maxLength))
	}

	total := HeaderLength + int(r.pending)
	if len(r.incoming) < total {
		return Frame{}, false, nil
	}

	body := make([]byte, r.pending)
	copy(body, r.incoming[HeaderLength:total])
	frame = Frame{Length: r.pending, Body: body}

	// Shift the remainder down so the backing array is reused.
	n := copy(r.incoming, r.incoming[total:])
	r.incoming = r.incoming[:n]
	r.pending = 0
	r.hasLength = false

	return frame, true, nil
}

// appendHeader appends the big-endian length prefix for a body of length n.
func appendHeader(dst []byte, n int) []byte {
	return binary.BigEndian.AppendUint16(dst, uint16(n))
}
