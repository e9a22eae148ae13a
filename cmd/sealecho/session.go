package main

import (
	"crypto/sha256"

	"github.com/pkg/errors"

	"github.com/Zereker/seal"
	"github.com/Zereker/seal/kex"
	"github.com/Zereker/seal/msgpackcodec"
)

const (
	kindHello = "hello"
	kindEcho  = "echo"
)

// envelope is the only message type sealecho speaks.
type envelope struct {
	Kind      string `msgpack:"kind"`
	PublicKey []byte `msgpack:"pub,omitempty"`
	Text      string `msgpack:"text,omitempty"`
}

func (e *envelope) Validate() error {
	switch e.Kind {
	case kindHello:
		if len(e.PublicKey) != kex.PublicKeySize {
			return errors.Errorf("hello: public key %d bytes", len(e.PublicKey))
		}
	case kindEcho:
	default:
		return errors.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

func newCodec() seal.Codec {
	return msgpackcodec.New(func() interface{} { return new(envelope) })
}

// errUnexpected is returned by handshakes receiving a message out of turn.
var errUnexpected = errors.New("unexpected message")

// handshake tracks one side of the hello exchange.
// Hellos travel in plaintext; every frame after them is sealed.
type handshake struct {
	role    kex.Role
	keyPair *kex.KeyPair
	done    bool
}

func newHandshake(role kex.Role) (*handshake, error) {
	kp, err := kex.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &handshake{role: role, keyPair: kp}, nil
}

func (h *handshake) hello() *envelope {
	return &envelope{Kind: kindHello, PublicKey: h.keyPair.PublicKey()}
}

// complete derives the session keys from the peer's hello and installs them.
func (h *handshake) complete(conn *seal.Conn, peer *envelope) error {
	if h.done || peer.Kind != kindHello {
		return errors.Wrapf(errUnexpected, "%s during handshake", peer.Kind)
	}

	own := h.keyPair.PublicKey()
	clientPub, serverPub := own, peer.PublicKey
	if h.role == kex.Server {
		clientPub, serverPub = peer.PublicKey, own
	}
	salt := sha256.Sum256(append(append([]byte{}, clientPub...), serverPub...))

	keys, err := h.keyPair.DeriveKeys(h.role, peer.PublicKey, salt[:])
	if err != nil {
		return err
	}
	if err := conn.InstallKeys(keys.Receive, keys.Send); err != nil {
		return err
	}

	h.done = true
	return nil
}
