package securechannel

import (
	"crypto/cipher"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultWindow is the RECOMMENDED timestamp acceptance window from
// spec §9: 500ms is appropriate for same-host IPC. Implementers who need
// to tolerate more clock skew may widen this to at most 5s.
const DefaultWindow = 500 * time.Millisecond

// Session is the per-connection secured message stream (spec §3
// "Session"): the raw stream, the derived AEAD cipher, the replay set,
// and the acceptance window. Sessions never share state with one
// another.
type Session struct {
	rw     rawReadWriter
	aead   cipher.AEAD
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[uint64]struct{}
}

func newSession(rw rawReadWriter, keys handshakeKeys, window time.Duration) (*Session, error) {
	aead, err := chacha20poly1305.NewX(keys.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to construct AEAD cipher: %w", err)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Session{
		rw:     rw,
		aead:   aead,
		window: window,
		now:    time.Now,
		seen:   make(map[uint64]struct{}),
	}, nil
}

// NewServerSession performs the server side of the handshake (spec
// §4.2) and returns the resulting secured session.
func NewServerSession(rw rawReadWriter, psk []byte, window time.Duration) (*Session, error) {
	keys, err := serverHandshake(rw, psk)
	if err != nil {
		return nil, err
	}
	return newSession(rw, keys, window)
}

// NewClientSession performs the client side of the handshake and returns
// the resulting secured session.
func NewClientSession(rw rawReadWriter, psk []byte, window time.Duration) (*Session, error) {
	keys, err := clientHandshake(rw, psk)
	if err != nil {
		return nil, err
	}
	return newSession(rw, keys, window)
}

// Send encrypts and writes one frame carrying payload as the plaintext
// body, per spec §4.2 "Send side".
func (s *Session) Send(payload []byte) error {
	nonce, err := randomNonce()
	if err != nil {
		return err
	}
	messageID, err := randomMessageID()
	if err != nil {
		return err
	}

	plaintext := encodePlaintext(s.now().UnixMilli(), messageID, payload)
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)

	return writeFrame(s.rw, nonce, ciphertext)
}

// Recv reads, decrypts, and validates one frame, returning its payload.
// Any of {short read, AEAD failure, stale timestamp, duplicate id,
// malformed plaintext} is fatal to the session: the caller must close
// the connection and send no reply (spec §4.2 "Error behavior").
func (s *Session) Recv() ([]byte, error) {
	nonce, ciphertext, err := readFrame(s.rw)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed: %w", err)
	}

	timestampMs, messageID, payload, err := decodePlaintext(plaintext)
	if err != nil {
		return nil, err
	}

	if err := s.checkReplay(timestampMs, messageID); err != nil {
		return nil, err
	}

	return payload, nil
}

// checkReplay enforces the freshness window and the per-session
// message-id uniqueness invariant (spec §4.2 "Replay defense"). Both
// checks must pass before the payload is surfaced to higher layers.
func (s *Session) checkReplay(timestampMs int64, messageID uint64) error {
	nowMs := s.now().UnixMilli()
	windowMs := s.window.Milliseconds()

	if nowMs-timestampMs > windowMs {
		return fmt.Errorf("message timestamp %dms is stale (now %dms, window %dms)", timestampMs, nowMs, windowMs)
	}
	if timestampMs-nowMs > windowMs {
		return fmt.Errorf("message timestamp %dms is too far in the future (now %dms, window %dms)", timestampMs, nowMs, windowMs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[messageID]; ok {
		return fmt.Errorf("duplicate message id %d", messageID)
	}
	s.seen[messageID] = struct{}{}
	return nil
}

// Close releases the underlying stream if it supports io.Closer.
func (s *Session) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
