// Package endpoint implements the local endpoint listener (C1): binding
// a platform-local listening endpoint at the path derived from a
// server_id, with an "everyone may connect" ACL (access control is
// delegated to the PSK and the secure-channel handshake, per spec §4.1).
package endpoint

import "fmt"

// ErrAddressInUse is returned when the endpoint path exists and cannot
// be overwritten; this is fatal for service startup per spec §4.1.
type ErrAddressInUse struct {
	Path string
	Err  error
}

func (e *ErrAddressInUse) Error() string {
	return fmt.Sprintf("endpoint %s is in use and could not be overwritten: %v", e.Path, e.Err)
}

func (e *ErrAddressInUse) Unwrap() error { return e.Err }
