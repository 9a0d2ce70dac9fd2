//go:build darwin

package svcinstall

// Install would copy the binary into /Library/PrivilegedHelperTools and
// register a launchd plist under /Library/LaunchDaemons, mirroring
// original_source/src/install.rs's macOS branch. TODO: write the plist
// and run `launchctl load`/`launchctl start`.
func Install(Options) error {
	return &ErrNotImplemented{Op: "install", OS: "darwin"}
}

// Uninstall would unload the launchd job and remove the plist and
// helper binary.
func Uninstall(Options) error {
	return &ErrNotImplemented{Op: "uninstall", OS: "darwin"}
}
