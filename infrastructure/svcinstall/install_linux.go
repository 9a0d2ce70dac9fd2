//go:build linux

package svcinstall

// Install would register a systemd unit for the supervisor, the Go
// analogue of original_source/src/install.rs's `systemctl`-driven
// Linux branch. TODO: write the unit file and run
// `systemctl daemon-reload && systemctl enable --now`.
func Install(Options) error {
	return &ErrNotImplemented{Op: "install", OS: "linux"}
}

// Uninstall would stop, disable, and remove the systemd unit.
func Uninstall(Options) error {
	return &ErrNotImplemented{Op: "uninstall", OS: "linux"}
}
