package seal

import (
	"crypto/cipher"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ChannelConfig configures a Channel. The zero value selects AES-256-GCM and
// the default 1024-byte frame limit.
type ChannelConfig struct {
	// Cipher is the AEAD used once keys are installed.
	Cipher Cipher
	// MaxFrameLength bounds the declared body length of every frame in both
	// directions. Values above 65535 are clamped.
	MaxFrameLength int
}

// Channel is the per-connection secure packet state: frame reassembly,
// the plaintext/keyed mode switch and one nonce counter per direction.
//
// A Channel is not safe for concurrent use. Its owner sequences Feed,
// Receive, Seal and InstallKeys.
type Channel struct {
	codec  Codec
	cipher Cipher
	frames *Reassembler

	maxFrameLength int

	encrypted bool
	opener    cipher.AEAD
	sealer    cipher.AEAD

	receiveCounter uint64
	sendCounter    uint64

	// failed latches the first receive-side protocol error.
	failed error
}

// NewChannel returns an unkeyed Channel decoding with codec.
// It panics if codec is nil or cfg names an unknown cipher.
func NewChannel(codec Codec, cfg ChannelConfig) *Channel {
	if codec == nil {
		panic("seal: nil codec")
	}
	if !cfg.Cipher.Valid() {
		panic(fmt.Sprintf("seal: unsupported cipher %s", cfg.Cipher))
	}

	frames := NewReassembler(cfg.MaxFrameLength)
	return &Channel{
		codec:          codec,
		cipher:         cfg.Cipher,
		frames:         frames,
		maxFrameLength: frames.maxLength,
	}
}

// Feed appends bytes read from the transport. Once a protocol error has
// been returned nothing will be received again, so input is discarded.
func (c *Channel) Feed(p []byte) {
	if c.failed != nil {
		return
	}
	c.frames.Feed(p)
}

// Buffered returns the number of received bytes not yet consumed.
func (c *Channel) Buffered() int {
	return c.frames.Buffered()
}

// Receive takes the next complete frame, authenticates and decrypts it when
// the channel is keyed, and decodes it.
//
// ok is false with a nil error when no complete frame is buffered yet.
// Any returned error is a *ProtocolError and is final: every later call
// returns the same error.
func (c *Channel) Receive() (msg Message, ok bool, err error) {
	if c.failed != nil {
		return nil, false, c.failed
	}

	frame, ok, err := c.frames.TakeFrame()
	if err != nil {
		return nil, false, c.fail(err)
	}
	if !ok {
		return nil, false, nil
	}

	body := frame.Body
	if c.encrypted {
		body, err = c.open(frame)
		if err != nil {
			return nil, false, c.fail(err)
		}
	}

	msg, err = c.codec.Decode(body)
	if err != nil {
		if !isDecodeFailure(err) {
			panic(fmt.Sprintf("seal: codec returned unclassified decode error: %v", err))
		}
		return nil, false, c.fail(protocolError(ErrInvalidPacket, err))
	}

	return msg, true, nil
}

// open authenticates and decrypts the frame body in place.
func (c *Channel) open(frame Frame) ([]byte, error) {
	if c.receiveCounter == math.MaxUint64 {
		return nil, protocolError(ErrNonceExhausted, nil)
	}

	nonce := nonceFor(c.receiveCounter)
	aad := appendHeader(make([]byte, 0, HeaderLength), int(frame.Length))

	plain, err := c.opener.Open(frame.Body[:0], nonce[:], frame.Body, aad)
	if err != nil {
		return nil, protocolError(ErrBadEncryption, err)
	}

	c.receiveCounter++
	return plain, nil
}

func (c *Channel) fail(err error) error {
	c.failed = err
	return err
}

// Seal encodes msg and returns one complete wire frame: the 2-byte
// big-endian length prefix followed by the body, sealed when keyed.
//
// A keyed Seal advances the send counter exactly once. Messages that would
// exceed the frame limit fail with ErrMessageTooLarge and change nothing.
func (c *Channel) Seal(msg Message) ([]byte, error) {
	body, err := c.codec.Encode(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}

	wireLength := len(body)
	if c.encrypted {
		wireLength += c.cipher.Overhead()
	}
	if wireLength > c.maxFrameLength {
		return nil, errors.Wrapf(ErrMessageTooLarge, "frame body %d bytes, limit %d",
			wireLength, c.maxFrameLength)
	}

	frame := make([]byte, 0, HeaderLength+wireLength)
	frame = appendHeader(frame, wireLength)

	if !c.encrypted {
		return append(frame, body...), nil
	}

	if c.sendCounter == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}

	nonce := nonceFor(c.sendCounter)
	// The prefix is the associated data. AEAD forbids dst and aad overlapping.
	var aad [HeaderLength]byte
	copy(aad[:], frame)
	frame = c.sealer.Seal(frame, nonce[:], body, aad[:])
	c.sendCounter++

	return frame, nil
}

// InstallKeys switches the channel to keyed mode. rx opens frames from the
// peer, tx seals frames to it. Both must be Cipher.KeySize() bytes.
//
// Key errors leave the channel in plaintext mode. Installing keys on an
// already keyed channel panics: rekeying would desynchronize the nonce
// counters with the peer.
func (c *Channel) InstallKeys(rx, tx []byte) error {
	if c.encrypted {
		panic("seal: keys already installed")
	}

	if len(rx) != c.cipher.KeySize() {
		return &KeyError{Direction: "receive", Size: len(rx), Want: c.cipher.KeySize()}
	}
	if len(tx) != c.cipher.KeySize() {
		return &KeyError{Direction: "send", Size: len(tx), Want: c.cipher.KeySize()}
	}

	opener, err := c.cipher.newAEAD(rx)
	if err != nil {
		return errors.Wrap(err, "receive key")
	}
	sealer, err := c.cipher.newAEAD(tx)
	if err != nil {
		return errors.Wrap(err, "send key")
	}

	c.opener = opener
	c.sealer = sealer
	c.encrypted = true
	return nil
}

// Encrypted reports whether keys have been installed.
func (c *Channel) Encrypted() bool { return c.encrypted }

// Cipher returns the configured AEAD algorithm.
func (c *Channel) Cipher() Cipher { return c.cipher }

// MaxFrameLength returns the effective frame body limit.
func (c *Channel) MaxFrameLength() int { return c.maxFrameLength }

// ReceiveCounter returns the number of frames opened since keying.
func (c *Channel) ReceiveCounter() uint64 { return c.receiveCounter }

// SendCounter returns the number of frames sealed since keying.
func (c *Channel) SendCounter() uint64 { return c.sendCounter }

// Err returns the protocol error that broke the channel, if any.
func (c *Channel) Err() error { return c.failed }
