package securechannel

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

// pipeConns returns a pair of connected in-memory net.Conn, one for each
// side of a simulated client/server session.
func pipeConns() (client, server net.Conn) {
	return net.Pipe()
}

func handshakePair(t *testing.T, clientPSK, serverPSK []byte) (client, server *Session) {
	t.Helper()
	c, s := pipeConns()

	type result struct {
		session *Session
		err     error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := NewClientSession(c, clientPSK, DefaultWindow)
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := NewServerSession(s, serverPSK, DefaultWindow)
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	if cr.err != nil {
		t.Fatalf("client handshake: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server handshake: %v", sr.err)
	}
	return cr.session, sr.session
}

func TestHandshake_SharedPSK_RoundTripsPayload(t *testing.T) {
	psk := []byte("verge-self-service-psk")
	client, server := handshakePair(t, psk, psk)

	done := make(chan error, 1)
	go func() { done <- client.Send([]byte(`"GetVersion"`)) }()

	payload, err := server.Recv()
	if err != nil {
		t.Fatalf("server recv: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client send: %v", err)
	}
	if string(payload) != `"GetVersion"` {
		t.Errorf("got payload %q, want %q", payload, `"GetVersion"`)
	}
}

func TestHandshake_WrongPSK_FirstFrameFailsAEAD(t *testing.T) {
	client, server := handshakePair(t, []byte("wrong"), []byte("right"))

	go func() { _ = client.Send([]byte(`"GetVersion"`)) }()

	if _, err := server.Recv(); err == nil {
		t.Fatal("expected AEAD failure when PSKs differ")
	}
}

// duplex adapts a pair of byte buffers into a rawReadWriter so frame
// bytes can be captured and replayed verbatim — something net.Pipe's
// synchronous, single-read semantics can't express.
type duplex struct {
	r io.Reader
	w io.Writer
}

func (d *duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.w.Write(p) }

func bufferedPair(t *testing.T, psk []byte) (client, server *Session) {
	t.Helper()
	// The handshake needs a blocking transport (the client reads the
	// server's key before returning), so it runs over net.Pipe; the
	// sessions are then moved onto byte buffers for the frame tests.
	client, server = handshakePair(t, psk, psk)
	_ = client.Close()
	_ = server.Close()

	clientBuf := new(bytes.Buffer)
	serverBuf := new(bytes.Buffer)
	client.rw = &duplex{r: serverBuf, w: clientBuf}
	server.rw = &duplex{r: clientBuf, w: serverBuf}
	return client, server
}

func TestRecv_RejectsReplayedMessageID(t *testing.T) {
	psk := []byte("shared")
	client, server := bufferedPair(t, psk)

	if err := client.Send([]byte(`"GetVersion"`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	frame := client.rw.(*duplex).w.(*bytes.Buffer).Bytes()
	frameCopy := append([]byte(nil), frame...)

	if _, err := server.Recv(); err != nil {
		t.Fatalf("first recv: %v", err)
	}

	serverBuf := server.rw.(*duplex).r.(*bytes.Buffer)
	serverBuf.Write(frameCopy)
	if _, err := server.Recv(); err == nil {
		t.Fatal("expected replay to be rejected")
	}
}

func TestRecv_RejectsStaleTimestamp(t *testing.T) {
	psk := []byte("shared")
	client, server := bufferedPair(t, psk)

	// Backdate the client's clock well past the acceptance window.
	client.now = func() time.Time { return time.Now().Add(-time.Hour) }

	if err := client.Send([]byte(`"GetVersion"`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := server.Recv(); err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
}

func TestRecv_RejectsFutureTimestamp(t *testing.T) {
	psk := []byte("shared")
	client, server := bufferedPair(t, psk)

	client.now = func() time.Time { return time.Now().Add(time.Hour) }

	if err := client.Send([]byte(`"GetVersion"`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := server.Recv(); err == nil {
		t.Fatal("expected out-of-future timestamp to be rejected")
	}
}

func TestServerHandshake_FailsOnEmptyInput(t *testing.T) {
	emptyBuf := new(bytes.Buffer)
	serverRW := &duplex{r: emptyBuf, w: new(bytes.Buffer)}

	if _, err := NewServerSession(serverRW, []byte("psk"), DefaultWindow); err == nil {
		t.Fatal("expected handshake to fail on empty input")
	}
}

func TestRecv_ShortFrameIsFatal(t *testing.T) {
	psk := []byte("shared")
	_, server := bufferedPair(t, psk)

	// Write a length prefix claiming more bytes than actually follow.
	serverBuf := server.rw.(*duplex).r.(*bytes.Buffer)
	serverBuf.Write([]byte{0, 0, 0, 100, 1, 2, 3})

	if _, err := server.Recv(); err == nil {
		t.Fatal("expected short frame to be rejected")
	}
}
