package seal

import (
	"fmt"

	"github.com/pkg/errors"
)

// Protocol errors. Every one of them is fatal for the connection that
// produced it: framing and nonce state cannot be trusted afterwards.
var (
	// ErrInvalidPacketLength is returned when a frame declares a body longer
	// than the maximum frame length.
	ErrInvalidPacketLength = errors.New("invalid packet length")
	// ErrBadEncryption is returned when a frame fails authenticated decryption.
	ErrBadEncryption = errors.New("bad encryption")
	// ErrInvalidPacket is returned when a frame body cannot be decoded into a message.
	ErrInvalidPacket = errors.New("invalid packet")
	// ErrNonceExhausted is returned when a direction has used every counter value.
	ErrNonceExhausted = errors.New("nonce counter exhausted")
)

// Decode failure classes. Codecs wrap untrusted-input failures with one of
// these so the channel can report them as ErrInvalidPacket. Any other decode
// error is treated as a codec bug.
var (
	// ErrMalformedMessage marks a body whose wire structure is broken.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrInvalidText marks a text field that is not valid UTF-8.
	ErrInvalidText = errors.New("invalid text encoding")
	// ErrIncompleteMessage marks a message with required fields missing.
	ErrIncompleteMessage = errors.New("incomplete message")
)

// ErrMessageTooLarge is returned when an outgoing message does not fit in a
// single frame.
var ErrMessageTooLarge = errors.New("message too large")

// ProtocolError is a classified receive-side failure.
// It matches its Kind with errors.Is and unwraps to the underlying cause.
type ProtocolError struct {
	Kind error
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *ProtocolError) Is(target error) bool {
	return target == e.Kind
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(kind, err error) *ProtocolError {
	return &ProtocolError{Kind: kind, Err: err}
}

// KeyError reports key material rejected at installation time.
type KeyError struct {
	Direction string
	Size      int
	Want      int
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid %s key: %d bytes, want %d", e.Direction, e.Size, e.Want)
}

// isDecodeFailure reports whether err belongs to one of the untrusted-input
// decode classes.
func isDecodeFailure(err error) bool {
	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrInvalidText) ||
		errors.Is(err, ErrIncompleteMessage)
}
