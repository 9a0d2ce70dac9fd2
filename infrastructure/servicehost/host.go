// Package servicehost implements the service host (C7): integrating
// with the platform's lifecycle (SCM / systemd / launchd / SIGINT), and
// running the accept loop that ties the local endpoint listener (C1),
// the secure channel (C2), the request codec (C3), and the command
// dispatcher (C4) together, per spec §4.7 and §5.
package servicehost

import (
	"context"
	"net"
	"time"

	"svcbroker/application/dispatcher"
	"svcbroker/application/protocol"
	"svcbroker/application/supervisor"
	"svcbroker/infrastructure/cryptography/securechannel"
	"svcbroker/infrastructure/ipc/endpoint"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Host owns the top-level lifecycle of spec §4.7: it binds the
// endpoint, accepts connections, and shuts down cleanly on either a
// StopService command or an external signal.
type Host struct {
	ServerID   string
	PSK        []byte
	Window     time.Duration
	Supervisor *supervisor.Supervisor
	Logger     zerolog.Logger
}

// Serve runs the accept loop until ctx is canceled or a StopService
// command is received. It returns nil on a clean shutdown.
func (h *Host) Serve(ctx context.Context) error {
	listener, err := endpoint.Listen(h.ServerID)
	if err != nil {
		return err
	}
	defer func() { _ = listener.Close() }()

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	disp := dispatcher.New(h.Supervisor, h.Logger, cancel)

	var sessions errgroup.Group
	acceptErrCh := make(chan error, 1)
	connCh := make(chan net.Conn)

	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				select {
				case <-innerCtx.Done():
					return
				default:
				}
				acceptErrCh <- acceptErr
				return
			}
			select {
			case connCh <- conn:
			case <-innerCtx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	h.Logger.Info().Str("server_id", h.ServerID).Msg("service listening")

	for {
		select {
		case <-innerCtx.Done():
			_ = listener.Close()
			_ = sessions.Wait()
			h.Logger.Info().Msg("service shut down")
			return nil

		case acceptErr := <-acceptErrCh:
			h.Logger.Error().Err(acceptErr).Msg("listener accept failed")
			return acceptErr

		case conn := <-connCh:
			sessions.Go(func() error {
				h.handleConnection(innerCtx, conn, disp)
				return nil
			})
		}
	}
}

// handleConnection runs one session's read loop: per spec §5, requests
// within a session are processed strictly in arrival order, and each
// response is written before the next request is read.
func (h *Host) handleConnection(ctx context.Context, conn net.Conn, disp *dispatcher.Dispatcher) {
	defer func() { _ = conn.Close() }()

	session, err := securechannel.NewServerSession(conn, h.PSK, h.Window)
	if err != nil {
		h.Logger.Debug().Err(err).Msg("handshake failed, closing session")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := h.serveOneRequest(session, disp); err != nil {
			if err != errSessionDone {
				h.Logger.Debug().Err(err).Msg("session closed")
			}
			return
		}
	}
}

// serveOneRequest reads exactly one request, dispatches it, writes the
// response, and reports whether the session should continue. A decode
// failure is an application-layer error (spec §4.3): it still gets an
// envelope reply and the session stays open. A StopService response is
// sent before the session is torn down, matching the "respond, then
// shut down" ordering spec §4.7 requires.
func (h *Host) serveOneRequest(session *securechannel.Session, disp *dispatcher.Dispatcher) error {
	payload, err := session.Recv()
	if err != nil {
		return err
	}

	cmd, decodeErr := protocol.DecodeCommand(payload)
	var env protocol.Envelope
	if decodeErr != nil {
		env = protocol.Fail(decodeErr)
	} else {
		env = disp.Dispatch(cmd)
	}

	respBytes, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := session.Send(respBytes); err != nil {
		return err
	}

	if decodeErr == nil && cmd.Tag == protocol.CmdStopService {
		return errSessionDone
	}
	return nil
}

var errSessionDone = &sessionDoneError{}

type sessionDoneError struct{}

func (*sessionDoneError) Error() string { return "session closed normally after StopService" }
