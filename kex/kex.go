// Package kex is a minimal key-exchange collaborator for seal channels.
//
// Each peer generates an ephemeral X25519 key pair and sends its public key
// in the clear. Both sides compute the shared secret and expand it with
// HKDF-SHA256 into two 32-byte keys, one per direction, so that the client's
// send key is the server's receive key and vice versa.
package kex

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of each derived direction key.
const KeySize = 32

// PublicKeySize is the length of an encoded public key.
const PublicKeySize = curve25519.PointSize

// Role tells DeriveKeys which direction key is which.
type Role int

const (
	// Client is the side that dialed.
	Client Role = iota
	// Server is the side that accepted.
	Server
)

func (r Role) String() string {
	if r == Server {
		return "server"
	}
	return "client"
}

var (
	// ErrInvalidPublicKey is returned for peer keys of the wrong size or
	// low order points.
	ErrInvalidPublicKey = errors.New("invalid public key")

	infoClientToServer = []byte("seal client->server")
	infoServerToClient = []byte("seal server->client")
)

// KeyPair is an ephemeral X25519 key pair. Use it for one handshake only.
type KeyPair struct {
	private [curve25519.ScalarSize]byte
	public  []byte
}

// GenerateKeyPair reads a fresh private scalar from rand.Reader.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(r, kp.private[:]); err != nil {
		return nil, errors.Wrap(err, "read private key")
	}

	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "derive public key")
	}
	kp.public = pub
	return kp, nil
}

// PublicKey returns the key to send to the peer.
func (kp *KeyPair) PublicKey() []byte {
	out := make([]byte, len(kp.public))
	copy(out, kp.public)
	return out
}

// Keys holds the two direction keys a Channel installs.
type Keys struct {
	Receive []byte
	Send    []byte
}

// DeriveKeys combines the local key pair with the peer's public key.
// salt binds the keys to the session (for example a hash of both hellos)
// and may be nil.
func (kp *KeyPair) DeriveKeys(role Role, peerPublic, salt []byte) (Keys, error) {
	if len(peerPublic) != PublicKeySize {
		return Keys{}, errors.Wrapf(ErrInvalidPublicKey, "%d bytes", len(peerPublic))
	}

	shared, err := curve25519.X25519(kp.private[:], peerPublic)
	if err != nil {
		// X25519 rejects low order points with an all-zero output.
		return Keys{}, errors.Wrap(ErrInvalidPublicKey, err.Error())
	}

	c2s, err := expand(shared, salt, infoClientToServer)
	if err != nil {
		return Keys{}, err
	}
	s2c, err := expand(shared, salt, infoServerToClient)
	if err != nil {
		return Keys{}, err
	}

	if role == Server {
		return Keys{Receive: c2s, Send: s2c}, nil
	}
	return Keys{Receive: s2c, Send: c2s}, nil
}

func expand(secret, salt, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, errors.Wrapf(err, "hkdf %s", info)
	}
	return key, nil
}
