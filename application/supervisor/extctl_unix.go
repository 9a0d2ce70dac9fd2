//go:build !windows

package supervisor

// ExtCtlFlag is the core binary's flag for its own external-control
// listen address, per spec §4.5.
const ExtCtlFlag = "-ext-ctl-unix"
