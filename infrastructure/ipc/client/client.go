// Package client implements the client half of the secured IPC channel:
// dial the local endpoint, perform the handshake, and exchange one
// command/response pair at a time. It is what the CLI's `version`
// subcommand and any future management tool use to talk to a running
// svcbroker instance, the same role
// infrastructure/PAL/configuration/client plays for the tunnel core's
// own config round trip.
package client

import (
	"fmt"
	"net"
	"time"

	"svcbroker/application/protocol"
	"svcbroker/infrastructure/cryptography/securechannel"
	"svcbroker/infrastructure/ipc/endpoint"
)

// Client holds one secured session with the supervisor. It is not safe
// for concurrent use: spec §4.2 defines one session as a strictly
// ordered request/response stream.
type Client struct {
	conn    net.Conn
	session *securechannel.Session
}

// Dial connects to the supervisor listening under serverID and performs
// the handshake. The caller owns the returned Client and must Close it.
func Dial(serverID string, psk []byte, window time.Duration) (*Client, error) {
	conn, err := endpoint.Dial(serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverID, err)
	}

	session, err := securechannel.NewClientSession(conn, psk, window)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	return &Client{conn: conn, session: session}, nil
}

// Call sends cmd and returns the decoded response envelope.
func (c *Client) Call(cmd protocol.Command) (protocol.Envelope, error) {
	body, err := cmd.MarshalJSON()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("failed to marshal command: %w", err)
	}
	if err := c.session.Send(body); err != nil {
		return protocol.Envelope{}, fmt.Errorf("failed to send command: %w", err)
	}

	respBytes, err := c.session.Recv()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("failed to receive response: %w", err)
	}
	env, err := protocol.DecodeEnvelope(respBytes)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return env, nil
}

// GetVersion is a typed convenience wrapper over Call for the CLI's
// `version` subcommand.
func (c *Client) GetVersion() (version, service string, err error) {
	env, err := c.Call(protocol.Command{Tag: protocol.CmdGetVersion})
	if err != nil {
		return "", "", err
	}
	if env.Code != protocol.CodeOK {
		return "", "", fmt.Errorf("server returned error: %s", env.Msg)
	}
	var data struct {
		Version string `json:"version"`
		Service string `json:"service"`
	}
	if err := env.Decode(&data); err != nil {
		return "", "", fmt.Errorf("failed to decode version payload: %w", err)
	}
	return data.Version, data.Service, nil
}

// StopService sends the StopService command and returns once the
// response has been read, per spec §4.4's "respond, then shut down"
// ordering.
func (c *Client) StopService() error {
	env, err := c.Call(protocol.Command{Tag: protocol.CmdStopService})
	if err != nil {
		return err
	}
	if env.Code != protocol.CodeOK {
		return fmt.Errorf("server returned error: %s", env.Msg)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
