//go:build windows

package servicehost

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
)

// WindowsServiceName is the name this binary registers under the
// Windows Service Control Manager.
const WindowsServiceName = "svcbroker"

// Run dispatches to either svc.Run (when started by the SCM) or a
// plain foreground Serve (when run interactively, e.g. `svcbroker run`
// from a console for diagnostics), mirroring the teacher's own
// elevation-then-branch shape in main.go.
func (h *Host) Run(ctx context.Context) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("failed to determine session type: %w", err)
	}
	if !isService {
		return h.Serve(ctx)
	}
	return svc.Run(WindowsServiceName, &windowsService{host: h})
}

// windowsService adapts Host to the svc.Handler interface the SCM
// dispatcher expects: a single Execute call that blocks for the
// service's entire lifetime and reports state transitions back to the
// SCM as they happen.
type windowsService struct {
	host *Host
}

func (s *windowsService) Execute(args []string, r <-chan svc.ChangeRequest, status chan<- svc.Status) (ssec bool, errno uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	elog, elogErr := eventlog.Open(WindowsServiceName)
	if elogErr == nil {
		defer func() { _ = elog.Close() }()
	}

	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- s.host.Serve(ctx) }()

	status <- svc.Status{State: svc.Running, Accepts: accepted}
	if elog != nil {
		_ = elog.Info(1, "svcbroker service started")
	}

loop:
	for {
		select {
		case err := <-serveErrCh:
			if err != nil && elog != nil {
				_ = elog.Error(1, fmt.Sprintf("svcbroker serve loop exited: %v", err))
			}
			break loop

		case req := <-r:
			switch req.Cmd {
			case svc.Interrogate:
				status <- req.CurrentStatus
			case svc.Stop, svc.Shutdown:
				status <- svc.Status{State: svc.StopPending}
				cancel()
				<-serveErrCh
				break loop
			}
		}
	}

	status <- svc.Status{State: svc.Stopped}
	if elog != nil {
		_ = elog.Info(1, "svcbroker service stopped")
	}
	return false, 0
}
