package seal

import "github.com/pkg/errors"

// Message is a decoded application message. The channel never looks inside
// it; only the Codec knows its shape.
type Message interface{}

// Codec is the interface for message encoding and decoding.
// Applications implement it to plug their own schema (msgpack, protobuf,
// hand-written binary) into a Channel.
//
// Decode receives exactly one frame body, already authenticated and
// decrypted when the channel is keyed. It must classify failures caused by
// the bytes themselves by wrapping ErrMalformedMessage, ErrInvalidText or
// ErrIncompleteMessage. Any other error is a codec bug and panics the caller.
type Codec interface {
	// Decode turns one frame body into a message.
	Decode(body []byte) (Message, error)
	// Encode turns a message into a frame body.
	Encode(Message) ([]byte, error)
}

// ErrUnsupportedMessage is returned by a codec asked to encode a value it
// does not understand.
var ErrUnsupportedMessage = errors.New("unsupported message type")

// RawCodec passes []byte messages through unchanged.
type RawCodec struct{}

// Decode returns the body itself as a []byte message.
func (RawCodec) Decode(body []byte) (Message, error) {
	return body, nil
}

// Encode accepts []byte and string messages.
func (RawCodec) Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case []byte:
		return m, nil
	case string:
		return []byte(m), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedMessage, "raw codec: %T", msg)
	}
}
