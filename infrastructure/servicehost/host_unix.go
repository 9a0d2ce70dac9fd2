//go:build !windows

package servicehost

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run blocks until either the Host shuts itself down (StopService) or
// the process receives SIGINT/SIGTERM — the signals systemd and
// launchd both send on stop, mirroring main.go's own
// signal.Notify(SIGINT, SIGTERM, SIGHUP) shutdown plumbing. Unix has no
// SCM registration step: a foreground process under systemd/launchd
// supervision is already "installed" in the sense spec §6 describes.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			h.Logger.Info().Msg("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return h.Serve(ctx)
}
