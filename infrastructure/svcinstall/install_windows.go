//go:build windows

package svcinstall

// Install would register the supervisor with the Windows Service
// Control Manager via golang.org/x/sys/windows/svc/mgr, the Go
// analogue of the Rust `windows-service` crate's install path. TODO:
// call mgr.Connect, CreateService, and Start.
func Install(Options) error {
	return &ErrNotImplemented{Op: "install", OS: "windows"}
}

// Uninstall would stop and delete the SCM service entry.
func Uninstall(Options) error {
	return &ErrNotImplemented{Op: "uninstall", OS: "windows"}
}
