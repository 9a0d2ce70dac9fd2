//go:build !windows

package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"svcbroker/application/logring"
	"svcbroker/application/supervisor"
	"svcbroker/infrastructure/cryptography/securechannel"
	"svcbroker/infrastructure/ipc/endpoint"
	"svcbroker/infrastructure/servicehost"

	"github.com/rs/zerolog"
)

type noopLauncher struct{}

func (noopLauncher) Launch(context.Context, string, []string) (supervisor.Process, error) {
	return nil, fmt.Errorf("unexpected launch")
}

type noopOrphanKiller struct{}

func (noopOrphanKiller) KillByImageName(string) error { return nil }

func startTestHost(t *testing.T, serverID string, psk []byte) {
	t.Helper()
	sup := supervisor.New(noopLauncher{}, noopOrphanKiller{}, logring.New(logring.DefaultCapacity), zerolog.Nop())
	host := &servicehost.Host{
		ServerID:   serverID,
		PSK:        psk,
		Window:     securechannel.DefaultWindow,
		Supervisor: sup,
		Logger:     zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = host.Serve(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = endpoint.Cleanup(endpoint.SocketPath(serverID))
	})
}

func TestClient_GetVersion(t *testing.T) {
	serverID := "svcbroker-client-test-version"
	psk := []byte("client-test-psk")
	startTestHost(t, serverID, psk)

	var c *Client
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err = Dial(serverID, psk, securechannel.DefaultWindow)
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	version, service, err := c.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if version == "" || service == "" {
		t.Errorf("got version=%q service=%q, want both non-empty", version, service)
	}
}

func TestClient_StopService(t *testing.T) {
	serverID := "svcbroker-client-test-stopservice"
	psk := []byte("client-test-psk-2")
	startTestHost(t, serverID, psk)

	var c *Client
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err = Dial(serverID, psk, securechannel.DefaultWindow)
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.StopService(); err != nil {
		t.Fatalf("StopService: %v", err)
	}
}
