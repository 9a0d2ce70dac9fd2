// Package svcinstall backs the `install`/`uninstall` CLI subcommands.
// Per spec.md §1, OS service registration content is out of scope for
// this rework; each platform body is a stub returning a typed error,
// the same "functionality scoped elsewhere" placeholder pattern as
// infrastructure/PAL/windows/factory's own not-implemented TUN factory
// branches — except here a typed error is returned instead of a panic,
// since this runs from a service entrypoint rather than a one-shot CLI
// path.
package svcinstall

import "fmt"

// ErrNotImplemented is returned by every Install/Uninstall body. The
// OS is named in the message so a user filing a bug can tell at a
// glance which platform's registration logic is still pending.
type ErrNotImplemented struct {
	Op string
	OS string
}

func (e *ErrNotImplemented) Error() string {
	return fmt.Sprintf("%s is not implemented on %s", e.Op, e.OS)
}

// Options carries what a concrete per-OS Install body would need: the
// server_id to embed in the registered unit/service, and the directory
// the installed service should log under.
type Options struct {
	ServerID string
	LogDir   string
	PSKFile  string
}
