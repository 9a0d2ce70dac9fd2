// Package securechannel implements the secure channel (C2): a
// per-connection X25519 handshake, HKDF-SHA256 key derivation salted by
// an optional pre-shared secret, and XChaCha20-Poly1305 AEAD framing
// with replay defense. It is the local-IPC analogue of
// infrastructure/cryptography/chacha20/handshake in the tunnel core: the
// same curve25519 + hkdf + chacha20poly1305 building blocks, stripped of
// the tunnel handshake's Ed25519 mutual-signature step because the PSK
// mixed into the HKDF salt already gives the same guarantee for a local,
// co-resident peer (see SPEC_FULL.md §4.2 and DESIGN.md).
package securechannel

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ProtocolLabel is the fixed ASCII label mixed into HKDF as the `info`
// parameter. It embeds the chosen replay window (spec §9 Open Question)
// so a future change to the window is visible on the wire.
const ProtocolLabel = "svcbroker/v1;window=500ms"

const (
	x25519KeySize = 32
)

// handshakeKeys is the keying material produced by a completed
// handshake: the derived session key, which the caller discards once the
// AEAD cipher is constructed. The DH shared secret is not kept.
type handshakeKeys struct {
	sessionKey []byte
}

// generateX25519KeyPair samples a fresh ephemeral key pair. Fresh
// ephemerals per connection are what give the channel forward secrecy
// (spec §4.2 "Rationale").
func generateX25519KeyPair() (priv, pub [x25519KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, fmt.Errorf("failed to generate x25519 private key: %w", err)
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, fmt.Errorf("failed to derive x25519 public key: %w", err)
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// deriveSessionKey computes k = HKDF-SHA256(salt=psk, ikm=DH(priv,peerPub), info=ProtocolLabel).
func deriveSessionKey(priv [x25519KeySize]byte, peerPub []byte, psk []byte) (handshakeKeys, error) {
	shared, err := curve25519.X25519(priv[:], peerPub)
	if err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, shared, psk, []byte(ProtocolLabel))
	if _, err := io.ReadFull(reader, key); err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to derive session key: %w", err)
	}
	return handshakeKeys{sessionKey: key}, nil
}

// rawReadWriter is the minimal surface the handshake needs from the
// underlying stream; net.Conn and the test fakes both satisfy it.
type rawReadWriter interface {
	io.Reader
	io.Writer
}

// clientHandshake writes the client's public key and reads the server's,
// per spec §4.2/§6: "No length prefix on handshake bytes."
func clientHandshake(rw rawReadWriter, psk []byte) (handshakeKeys, error) {
	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return handshakeKeys{}, err
	}
	if _, err := rw.Write(pub[:]); err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to write client public key: %w", err)
	}

	peerPub := make([]byte, x25519KeySize)
	if _, err := io.ReadFull(rw, peerPub); err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to read server public key: %w", err)
	}

	return deriveSessionKey(priv, peerPub, psk)
}

// serverHandshake is the mirror image of clientHandshake: read the
// client's public key first, then reply with the server's own.
func serverHandshake(rw rawReadWriter, psk []byte) (handshakeKeys, error) {
	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return handshakeKeys{}, err
	}

	peerPub := make([]byte, x25519KeySize)
	if _, err := io.ReadFull(rw, peerPub); err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to read client public key: %w", err)
	}

	if _, err := rw.Write(pub[:]); err != nil {
		return handshakeKeys{}, fmt.Errorf("failed to write server public key: %w", err)
	}

	return deriveSessionKey(priv, peerPub, psk)
}
