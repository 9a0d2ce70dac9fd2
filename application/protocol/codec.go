package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeCommand parses the UTF-8 JSON payload carried inside a secured
// frame into a Command. Parse errors are application-layer errors per
// spec §4.3 — the caller turns them into a CodeError envelope, it never
// tears down the session.
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid request: %w", err)
	}
	return cmd, nil
}

// EncodeEnvelope serializes a response envelope to the JSON bytes that
// become the next frame's AEAD plaintext payload.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope is the client-side counterpart of EncodeEnvelope.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("invalid response: %w", err)
	}
	return e, nil
}
