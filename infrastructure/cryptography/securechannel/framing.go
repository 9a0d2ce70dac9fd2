package securechannel

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire framing (spec §4.2/§6): u32 BE length || 24-byte nonce || ciphertext_with_tag.
const (
	nonceSize     = 24 // XChaCha20-Poly1305 nonce size
	lengthPrefix  = 4
	minPlaintext  = 24 // 16-byte timestamp + 8-byte message id
	timestampSize = 16
	messageIDSize = 8
)

// writeFrame writes one length-prefixed frame: length = len(nonce) + len(ciphertext).
func writeFrame(w io.Writer, nonce, ciphertext []byte) error {
	frameLen := uint32(len(nonce) + len(ciphertext))
	header := make([]byte, lengthPrefix)
	binary.BigEndian.PutUint32(header, frameLen)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := w.Write(nonce); err != nil {
		return fmt.Errorf("failed to write frame nonce: %w", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write frame ciphertext: %w", err)
	}
	return nil
}

// readFrame reads exactly one length-prefixed frame. A short read at any
// point is a fatal framing error (spec §4.2): "A read that does not fill
// the expected buffer is a fatal framing error that closes the session."
func readFrame(r io.Reader) (nonce, ciphertext []byte, err error) {
	header := make([]byte, lengthPrefix)
	if _, err = io.ReadFull(r, header); err != nil {
		return nil, nil, fmt.Errorf("short read on frame length: %w", err)
	}
	frameLen := binary.BigEndian.Uint32(header)
	if frameLen < nonceSize {
		return nil, nil, fmt.Errorf("frame length %d shorter than nonce size", frameLen)
	}

	body := make([]byte, frameLen)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("short read on frame body: %w", err)
	}

	return body[:nonceSize], body[nonceSize:], nil
}

// randomNonce samples a fresh 24-byte nonce. Nonces are random and never
// reused within a key: the key is per-session and 192 bits of randomness
// make collision negligible (spec §4.2 "Send side").
func randomNonce() ([]byte, error) {
	n := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// randomMessageID samples a fresh 64-bit message identifier.
func randomMessageID() (uint64, error) {
	buf := make([]byte, messageIDSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return 0, fmt.Errorf("failed to generate message id: %w", err)
	}
	return binary.BigEndian.Uint64(buf), nil
}

// encodePlaintext lays out timestamp_ms(u128 BE) || message_id(u64 BE) || payload.
// The timestamp is carried in the low 64 bits of the 16-byte field; the
// high 64 bits are always written as zero (a 64-bit millisecond count
// does not overflow for hundreds of millions of years) and are ignored
// by decodePlaintext.
func encodePlaintext(timestampMs int64, messageID uint64, payload []byte) []byte {
	out := make([]byte, minPlaintext+len(payload))
	binary.BigEndian.PutUint64(out[8:16], uint64(timestampMs))
	binary.BigEndian.PutUint64(out[16:24], messageID)
	copy(out[24:], payload)
	return out
}

// decodePlaintext is the inverse of encodePlaintext; it rejects
// plaintexts shorter than minPlaintext per spec §4.2.
func decodePlaintext(plaintext []byte) (timestampMs int64, messageID uint64, payload []byte, err error) {
	if len(plaintext) < minPlaintext {
		return 0, 0, nil, fmt.Errorf("plaintext shorter than %d bytes", minPlaintext)
	}
	timestampMs = int64(binary.BigEndian.Uint64(plaintext[8:16]))
	messageID = binary.BigEndian.Uint64(plaintext[16:24])
	payload = plaintext[24:]
	return timestampMs, messageID, payload, nil
}
