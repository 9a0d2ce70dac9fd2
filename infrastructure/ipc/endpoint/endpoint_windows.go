//go:build windows

package endpoint

import (
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PipePath derives the named pipe path for a server_id, per spec §3:
// `\\.\pipe\<server_id>`.
func PipePath(serverID string) string {
	return `\\.\pipe\` + serverID
}

const (
	pipeAccessDuplex   = 0x00000003
	fileFlagOverlapped = 0x40000000
	pipeTypeByte       = 0x00000000
	pipeReadmodeByte   = 0x00000000
	pipeWait           = 0x00000000
	pipeUnlimited      = 255
	defaultBufSize     = 65536
)

// everyoneConnectSDDL grants local Everyone generic-all access, the
// Windows analogue of the UNIX "mode allowing connect for all local
// users" requirement in spec §6.
const everyoneConnectSDDL = "D:(A;;GA;;;WD)"

var (
	modKernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procCreateNamedPipeW   = modKernel32.NewProc("CreateNamedPipeW")
	procConnectNamedPipe   = modKernel32.NewProc("ConnectNamedPipe")
	procDisconnectNamedPipe = modKernel32.NewProc("DisconnectNamedPipe")
)

// pipeListener implements net.Listener over a sequence of named pipe
// instances, each accepted connection getting its own pipe handle so
// the "lazy infinite sequence of independent bidirectional byte
// streams" semantics of spec §4.1 hold.
type pipeListener struct {
	path string
	sd   *windows.SECURITY_DESCRIPTOR

	mu     sync.Mutex
	closed bool
}

// Listen binds the named pipe endpoint for serverID. Overwrite policy
// is implicit: CreateNamedPipe on an existing pipe name just creates
// another instance, so no "stale file" cleanup is needed on Windows
// (spec §4.1 note applies to UNIX sockets specifically).
func Listen(serverID string) (net.Listener, error) {
	path := PipePath(serverID)

	sd, err := windows.SecurityDescriptorFromString(everyoneConnectSDDL)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipe security descriptor: %w", err)
	}

	return &pipeListener{path: path, sd: sd}, nil
}

func (l *pipeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, fmt.Errorf("pipe listener closed")
	}
	l.mu.Unlock()

	sa := &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: l.sd,
		InheritHandle:      0,
	}

	pathPtr, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipe path: %w", err)
	}

	h, _, callErr := procCreateNamedPipeW.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		pipeAccessDuplex,
		pipeTypeByte|pipeReadmodeByte|pipeWait,
		pipeUnlimited,
		defaultBufSize,
		defaultBufSize,
		0,
		uintptr(unsafe.Pointer(sa)),
	)
	handle := windows.Handle(h)
	if handle == windows.InvalidHandle {
		return nil, fmt.Errorf("CreateNamedPipeW failed: %w", callErr)
	}

	ok, _, connErr := procConnectNamedPipe.Call(uintptr(handle), 0)
	if ok == 0 && connErr != syscall.Errno(windows.ERROR_PIPE_CONNECTED) {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("ConnectNamedPipe failed: %w", connErr)
	}

	return &pipeConn{handle: handle, path: l.path}, nil
}

func (l *pipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr(l.path) }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeConn adapts a single named-pipe instance handle to net.Conn.
type pipeConn struct {
	handle windows.Handle
	path   string
}

func (c *pipeConn) Read(p []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(c.handle, p, &n, nil)
	return int(n), err
}

func (c *pipeConn) Write(p []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(c.handle, p, &n, nil)
	return int(n), err
}

func (c *pipeConn) Close() error {
	_, _, _ = procDisconnectNamedPipe.Call(uintptr(c.handle))
	return windows.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr  { return pipeAddr(c.path) }
func (c *pipeConn) RemoteAddr() net.Addr { return pipeAddr(c.path) }

func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// Dial connects to the named pipe for serverID as a client.
func Dial(serverID string) (net.Conn, error) {
	path := PipePath(serverID)
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipe path: %w", err)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipe %s: %w", path, err)
	}

	return &pipeConn{handle: handle, path: path}, nil
}

// Cleanup is a no-op on Windows: named pipes are not filesystem objects
// and need no cleanup after StopClash (spec §4.4).
func Cleanup(_ string) error { return nil }
