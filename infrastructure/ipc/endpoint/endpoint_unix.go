//go:build !windows

package endpoint

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketPath derives the UNIX domain socket path for a server_id, per
// spec §3: "/tmp/<server_id>.sock".
func SocketPath(serverID string) string {
	return filepath.Join("/tmp", serverID+".sock")
}

// Listen binds the local endpoint for serverID. A stale socket file at
// the derived path is removed first (the "overwrite" policy); any other
// bind failure is reported as ErrAddressInUse and is fatal for startup.
func Listen(serverID string) (net.Listener, error) {
	path := SocketPath(serverID)

	if _, err := os.Stat(path); err == nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, &ErrAddressInUse{Path: path, Err: rmErr}
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, &ErrAddressInUse{Path: path, Err: err}
	}

	// UNIX domain socket mode bits gate connect the same way file
	// permissions do; 0666 lets any local user connect, matching the
	// Windows DACL's "Everyone" grant (spec §6 "Endpoint path").
	if chmodErr := os.Chmod(path, 0o666); chmodErr != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to relax socket permissions: %w", chmodErr)
	}

	return listener, nil
}

// Dial connects to the endpoint for serverID as a client, used by the
// CLI's `version` subcommand and by tests exercising a full round trip.
func Dial(serverID string) (net.Conn, error) {
	return net.Dial("unix", SocketPath(serverID))
}

// Cleanup removes the file at path if it still exists. Used
// after StopClash when the supervised core's own socket_path was a UNIX
// filesystem path (spec §4.4).
func Cleanup(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
