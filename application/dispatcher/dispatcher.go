// Package dispatcher implements the command dispatcher (C4): mapping
// each decrypted command to a handler and producing a response
// envelope, per spec §4.4.
package dispatcher

import (
	"fmt"
	"runtime"

	"svcbroker/application/protocol"
	"svcbroker/application/supervisor"
	"svcbroker/infrastructure/ipc/endpoint"

	"github.com/rs/zerolog"
)

// Version is the supervisor binary's own semantic version, reported by
// GetVersion (spec §6).
const Version = "1.0.0"

// ServiceName is the human-readable service identity reported by
// GetVersion — named for the system this supervisor was distilled from.
const ServiceName = "Clash Verge Self Service"

// VersionData is the data payload of a GetVersion response.
type VersionData struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// Shutdown broadcasts process-wide shutdown (spec §4.4, §4.7). Dispatch
// calls it on every StopService, before returning the envelope; the
// caller still sends that envelope, since in-flight sessions are allowed
// to finish.
type Shutdown func()

// Dispatcher executes each decrypted command against the shared
// Supervisor singleton and produces the envelope to send back.
type Dispatcher struct {
	sup      *supervisor.Supervisor
	logger   zerolog.Logger
	shutdown Shutdown
}

// New constructs a Dispatcher bound to the given Supervisor.
func New(sup *supervisor.Supervisor, logger zerolog.Logger, shutdown Shutdown) *Dispatcher {
	return &Dispatcher{sup: sup, logger: logger, shutdown: shutdown}
}

// Dispatch executes cmd and returns the response envelope. Per spec
// §4.4, the dispatcher runs synchronously with respect to the calling
// session: one in-flight request at a time.
func (d *Dispatcher) Dispatch(cmd protocol.Command) protocol.Envelope {
	d.logger.Debug().Str("command", cmd.Tag).Msg("dispatching command")

	switch cmd.Tag {
	case protocol.CmdGetVersion:
		return protocol.OK(VersionData{Version: Version, Service: ServiceName})

	case protocol.CmdGetClash:
		snap, err := d.sup.GetClash()
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(snap)

	case protocol.CmdGetLogs:
		return protocol.OK(d.sup.GetLogs())

	case protocol.CmdStartClash:
		if err := d.sup.StartClash(cmd.Start); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK(nil)

	case protocol.CmdStopClash:
		return d.dispatchStopClash()

	case protocol.CmdStopService:
		return d.dispatchStopService()

	default:
		return protocol.Fail(fmt.Errorf("unknown command: %q", cmd.Tag))
	}
}

// dispatchStopClash runs StopClash and, on success, deletes the prior
// UNIX socket_path if one was configured (spec §4.4 "Special
// post-processing"). Windows named pipes are not filesystem objects and
// need no cleanup.
func (d *Dispatcher) dispatchStopClash() protocol.Envelope {
	priorInfo := d.sup.CurrentInfo()

	if err := d.sup.StopClash(); err != nil {
		return protocol.Fail(err)
	}

	if runtime.GOOS != "windows" && priorInfo != nil && priorInfo.SocketPath != nil {
		if err := endpoint.Cleanup(*priorInfo.SocketPath); err != nil {
			d.logger.Warn().Err(err).Str("socket_path", *priorInfo.SocketPath).Msg("failed to remove core socket")
		}
	}

	return protocol.OK(nil)
}

// dispatchStopService implies StopClash before final teardown — the
// RECOMMENDED resolution of spec §9's open question — then signals
// process-wide shutdown. The caller (servicehost) is responsible for
// sending this envelope and closing the session before the shutdown
// signal takes effect.
func (d *Dispatcher) dispatchStopService() protocol.Envelope {
	_ = d.dispatchStopClash()

	if d.shutdown != nil {
		d.shutdown()
	}
	return protocol.OK(nil)
}
