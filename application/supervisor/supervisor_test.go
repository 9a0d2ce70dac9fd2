package supervisor

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"svcbroker/application/logring"
	"svcbroker/application/protocol"

	"github.com/rs/zerolog"
)

// fakeProcess is a Process whose exit is controlled by the test via
// exitCh, and whose stdout is a fixed string.
type fakeProcess struct {
	pid    int
	stdout io.ReadCloser
	exitCh chan struct{}
	killed atomic.Bool
}

func newFakeProcess(pid int, stdout string) *fakeProcess {
	return &fakeProcess{
		pid:    pid,
		stdout: io.NopCloser(strings.NewReader(stdout)),
		exitCh: make(chan struct{}),
	}
}

func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *fakeProcess) Pid() int              { return p.pid }

func (p *fakeProcess) Wait() error {
	<-p.exitCh
	return nil
}

func (p *fakeProcess) Kill() error {
	if p.killed.CompareAndSwap(false, true) {
		close(p.exitCh)
	}
	return nil
}

// fakeLauncher hands out fakeProcesses and records every launch.
type fakeLauncher struct {
	mu      sync.Mutex
	nextPid int
	spawns  []string // binPath per spawn, in order
	procs   []*fakeProcess
}

func (f *fakeLauncher) Launch(_ context.Context, binPath string, _ []string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPid++
	p := newFakeProcess(f.nextPid, "level=info starting\n")
	f.spawns = append(f.spawns, binPath)
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeLauncher) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

func (f *fakeLauncher) lastProc() *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

type noopOrphanKiller struct{ calls atomic.Int32 }

func (k *noopOrphanKiller) KillByImageName(string) error {
	k.calls.Add(1)
	return nil
}

func testBody() protocol.StartBody {
	return protocol.StartBody{
		BinPath:    "/usr/bin/verge-mihomo",
		ConfigDir:  "/etc/verge",
		ConfigFile: "config.yaml",
		LogFile:    "/var/log/verge/core.log",
	}
}

func newTestSupervisor(launcher Launcher, killer OrphanKiller, opts ...Option) *Supervisor {
	ring := logring.New(100)
	logger := zerolog.Nop()
	return New(launcher, killer, ring, logger, opts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestGetClash_NotExecutedInitially(t *testing.T) {
	sup := newTestSupervisor(&fakeLauncher{}, &noopOrphanKiller{})
	if _, err := sup.GetClash(); err != ErrNotExecuted {
		t.Fatalf("got %v, want %v", err, ErrNotExecuted)
	}
}

func TestStartClash_ThenGetClash_Succeeds(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher, &noopOrphanKiller{})

	if err := sup.StartClash(testBody()); err != nil {
		t.Fatalf("StartClash: %v", err)
	}
	snap, err := sup.GetClash()
	if err != nil {
		t.Fatalf("GetClash: %v", err)
	}
	if !snap.AutoRestart || snap.RestartRetryCount != InitialRetryBudget {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestStopClash_Idempotent_NoError(t *testing.T) {
	killer := &noopOrphanKiller{}
	sup := newTestSupervisor(&fakeLauncher{}, killer)

	if err := sup.StopClash(); err != nil {
		t.Fatalf("first StopClash: %v", err)
	}
	if err := sup.StopClash(); err != nil {
		t.Fatalf("second StopClash: %v", err)
	}
	if killer.calls.Load() != 2 {
		t.Fatalf("expected orphan sweep on every StopClash, got %d calls", killer.calls.Load())
	}
}

func TestStopClash_AfterStart_GetClashFailsNotExecuted(t *testing.T) {
	sup := newTestSupervisor(&fakeLauncher{}, &noopOrphanKiller{})
	_ = sup.StartClash(testBody())
	_ = sup.StopClash()

	if _, err := sup.GetClash(); err != ErrNotExecuted {
		t.Fatalf("got %v, want %v", err, ErrNotExecuted)
	}
}

func TestRestartBudget_ExhaustsAfterTenRestarts(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher, &noopOrphanKiller{}, WithStableThreshold(time.Hour))

	if err := sup.StartClash(testBody()); err != nil {
		t.Fatalf("StartClash: %v", err)
	}

	// Each exit should trigger exactly one restart until the budget of
	// 10 is exhausted, for a total of 11 spawns (the initial + 10
	// restarts), then GetClash must report ErrRetryExceeded.
	for i := 0; i < 11; i++ {
		waitFor(t, func() bool { return launcher.lastProc() != nil })
		proc := launcher.lastProc()
		_ = proc.Kill()
		if i < 10 {
			waitFor(t, func() bool { return launcher.spawnCount() == i+2 })
		}
	}

	waitFor(t, func() bool {
		_, err := sup.GetClash()
		return err == ErrRetryExceeded
	})

	if launcher.spawnCount() != 11 {
		t.Fatalf("got %d spawns, want 11 (1 initial + 10 restarts)", launcher.spawnCount())
	}
}

func TestRestartBudget_ResetsAfterStableRun(t *testing.T) {
	launcher := &fakeLauncher{}
	var frozen time.Time
	var mu sync.Mutex
	clockFn := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return frozen
	}
	frozen = time.Now()

	sup := newTestSupervisor(launcher, &noopOrphanKiller{}, WithStableThreshold(60*time.Second), withClock(clockFn))

	if err := sup.StartClash(testBody()); err != nil {
		t.Fatalf("StartClash: %v", err)
	}
	waitFor(t, func() bool { return launcher.lastProc() != nil })

	// Burn a few retries without advancing the clock.
	for i := 0; i < 3; i++ {
		proc := launcher.lastProc()
		_ = proc.Kill()
		waitFor(t, func() bool { return launcher.spawnCount() == i+2 })
	}

	snap, err := sup.GetClash()
	if err != nil {
		t.Fatalf("GetClash: %v", err)
	}
	if snap.RestartRetryCount != InitialRetryBudget-3 {
		t.Fatalf("got retry count %d, want %d", snap.RestartRetryCount, InitialRetryBudget-3)
	}

	// Advance the clock past the stable threshold, then exit once more.
	mu.Lock()
	frozen = frozen.Add(61 * time.Second)
	mu.Unlock()

	proc := launcher.lastProc()
	_ = proc.Kill()
	waitFor(t, func() bool {
		snap, err := sup.GetClash()
		return err == nil && snap.RestartRetryCount == InitialRetryBudget
	})
}

func TestGetLogs_ReturnsRingSnapshot(t *testing.T) {
	sup := newTestSupervisor(&fakeLauncher{}, &noopOrphanKiller{})
	_ = sup.StartClash(testBody())
	waitFor(t, func() bool { return len(sup.GetLogs()) > 0 })

	lines := sup.GetLogs()
	if len(lines) == 0 || !strings.Contains(lines[0], "starting") {
		t.Fatalf("unexpected log lines: %v", lines)
	}
}
