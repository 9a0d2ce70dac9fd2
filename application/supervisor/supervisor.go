package supervisor

import (
	"context"
	"regexp"
	"sync"
	"time"

	"svcbroker/application/logring"
	"svcbroker/application/protocol"

	"github.com/rs/zerolog"
)

// StableThreshold is the sustained-runtime credit window from spec §3:
// a restart whose previous run exceeded this duration resets the retry
// budget back to InitialRetryBudget.
const StableThreshold = 60 * time.Second

// InitialRetryBudget is the restart-retry budget a fresh or
// freshly-reset supervisor starts with (spec §3).
const InitialRetryBudget uint8 = 10

// DefaultOrphanImageName is the image name belt-and-braces cleanup kills
// on every StopClash (spec §4.5, glossary "Core / supervised child").
const DefaultOrphanImageName = "verge-mihomo"

var levelPattern = regexp.MustCompile(`level=(error|warning|info|debug)`)

// Snapshot is the read-only view of supervisor state returned to
// clients via GetClash (spec §3 "Supervisor state").
type Snapshot struct {
	AutoRestart       bool                `json:"auto_restart"`
	RestartRetryCount uint8               `json:"restart_retry_count"`
	Info              *protocol.StartBody `json:"info"`
}

// LogFileChanger reinitializes the service's own file logger so output
// is written under dirname(body.log_file), per spec §4.5 "Spawn", and
// returns the logger the supervisor should log through from then on. It
// is a narrow seam onto infrastructure/logging so this package never
// imports a concrete logging backend.
type LogFileChanger func(dir, file string) (zerolog.Logger, error)

// Supervisor is the process-wide singleton of spec §3 "Supervisor
// state". Only Supervisor's own methods (StartClash, StopClash, spawn,
// and the exit waiter) mutate its fields; every access goes through mu.
type Supervisor struct {
	launcher        Launcher
	orphanKiller    OrphanKiller
	orphanImageName string
	ring            *logring.Ring
	logger          zerolog.Logger
	onLogFileChange LogFileChanger
	stableThreshold time.Duration
	retryBudget     uint8
	extCtlFlag      string
	now             func() time.Time

	mu              sync.Mutex
	autoRestart     bool
	retryCount      uint8
	child           Process
	lastRunningTime time.Time
	info            *protocol.StartBody
}

// Option customizes a Supervisor at construction time.
type Option func(*Supervisor)

// WithStableThreshold overrides the 60s sustained-runtime credit window.
func WithStableThreshold(d time.Duration) Option {
	return func(s *Supervisor) { s.stableThreshold = d }
}

// WithRetryBudget overrides the default restart-retry budget of 10.
func WithRetryBudget(n uint8) Option {
	return func(s *Supervisor) { s.retryBudget = n; s.retryCount = n }
}

// WithOrphanImageName overrides the process image name swept on stop.
func WithOrphanImageName(name string) Option {
	return func(s *Supervisor) { s.orphanImageName = name }
}

// WithLogFileChanger wires the supervisor to the service's file logger.
func WithLogFileChanger(f LogFileChanger) Option {
	return func(s *Supervisor) { s.onLogFileChange = f }
}

// WithExtCtlFlag overrides the platform-specific external-control flag
// (defaults to ExtCtlFlag, which is build-tag selected per OS).
func WithExtCtlFlag(flag string) Option {
	return func(s *Supervisor) { s.extCtlFlag = flag }
}

// withClock is test-only: it lets tests fake the passage of time instead
// of sleeping real seconds to exercise the stable-threshold reset.
func withClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New constructs a Supervisor in its default (never-started) state.
func New(launcher Launcher, orphanKiller OrphanKiller, ring *logring.Ring, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher:        launcher,
		orphanKiller:    orphanKiller,
		orphanImageName: DefaultOrphanImageName,
		ring:            ring,
		logger:          logger,
		stableThreshold: StableThreshold,
		retryBudget:     InitialRetryBudget,
		retryCount:      InitialRetryBudget,
		extCtlFlag:      ExtCtlFlag,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartClash spawns the core per spec §4.5 "Spawn". It first calls
// StopClash to guarantee idempotence.
func (s *Supervisor) StartClash(body protocol.StartBody) error {
	if err := s.StopClash(); err != nil {
		return err
	}

	bodyCopy := body
	s.mu.Lock()
	s.autoRestart = true
	s.info = &bodyCopy
	s.retryCount = s.retryBudget
	s.mu.Unlock()

	if s.onLogFileChange != nil {
		dir, file := splitLogPath(body.LogFile)
		newLogger, err := s.onLogFileChange(dir, file)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.logger = newLogger
		s.mu.Unlock()
	}

	return s.spawn(bodyCopy)
}

// currentLogger returns the active logger, which onLogFileChange may
// have swapped out since the supervisor was constructed.
func (s *Supervisor) currentLogger() zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// spawn launches the core and starts its two auxiliary threads: a
// stdout reader and an exit waiter (spec §4.5).
func (s *Supervisor) spawn(body protocol.StartBody) error {
	args := BuildArgs(body, s.extCtlFlag)
	proc, err := s.launcher.Launch(context.Background(), body.BinPath, args)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.child = proc
	s.lastRunningTime = s.now()
	s.mu.Unlock()

	go s.readStdout(proc)
	go s.waitAndMaybeRestart(proc, body)

	return nil
}

// readStdout mirrors each line to the log ring and to the service
// logger at the severity parsed from a `level=(...)` pattern, default
// info (spec §4.5 "Stdout reader").
func (s *Supervisor) readStdout(proc Process) {
	readLines(proc.Stdout(), func(line string) {
		s.ring.Append(line)

		level := "info"
		if m := levelPattern.FindStringSubmatch(line); m != nil {
			level = m[1]
		}
		logger := s.currentLogger()
		event := logger.Info()
		switch level {
		case "error":
			event = logger.Error()
		case "warning":
			event = logger.Warn()
		case "debug":
			event = logger.Debug()
		}
		event.Str("source", "core").Msg(line)
	})
}

// waitAndMaybeRestart blocks on child exit and applies the restart
// policy of spec §4.5 "Exit waiter".
func (s *Supervisor) waitAndMaybeRestart(proc Process, body protocol.StartBody) {
	_ = proc.Wait()

	s.mu.Lock()
	if s.child == proc {
		s.child = nil
	}
	autoRestart := s.autoRestart
	lastRunning := s.lastRunningTime
	s.mu.Unlock()

	if !autoRestart {
		return
	}

	elapsed := s.now().Sub(lastRunning)

	s.mu.Lock()
	stable := elapsed > s.stableThreshold
	if stable {
		// A run that lasted past the stable threshold is credited in
		// full: the budget resets and this restart doesn't spend from
		// it, so restart_retry_count is observed at InitialRetryBudget
		// immediately afterward (spec §8).
		s.retryCount = s.retryBudget
	} else if s.retryCount == 0 {
		s.mu.Unlock()
		s.currentLogger().Error().Msg("retry count exceeded")
		return
	} else {
		s.retryCount--
	}
	retryCount := s.retryCount
	s.mu.Unlock()

	s.ring.Clear()
	s.currentLogger().Warn().Uint8("retry_count", retryCount).Msg("core terminated, restarting")

	if err := s.spawn(body); err != nil {
		s.currentLogger().Error().Err(err).Msg("failed to restart core")
	}
}

// StopClash terminates the supervised core (if any), resets supervisor
// state to its initial never-started values (retry count back to the
// full budget), clears the log ring, and sweeps orphaned
// processes by image name (spec §4.5 "Stop"). It is idempotent.
func (s *Supervisor) StopClash() error {
	s.mu.Lock()
	child := s.child
	s.autoRestart = false
	s.child = nil
	s.info = nil
	s.retryCount = s.retryBudget
	s.lastRunningTime = time.Time{}
	s.mu.Unlock()

	if child != nil {
		if err := child.Kill(); err != nil {
			s.currentLogger().Warn().Err(err).Msg("failed to kill supervised core")
		}
	}

	s.ring.Clear()

	if err := s.orphanKiller.KillByImageName(s.orphanImageName); err != nil {
		s.currentLogger().Warn().Err(err).Str("image", s.orphanImageName).Msg("orphan sweep failed")
	}

	return nil
}

// GetClash returns a snapshot of supervisor state (spec §4.5 "Query").
func (s *Supervisor) GetClash() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return Snapshot{}, ErrNotExecuted
	}
	if s.retryCount == 0 {
		return Snapshot{}, ErrRetryExceeded
	}

	infoCopy := *s.info
	return Snapshot{
		AutoRestart:       s.autoRestart,
		RestartRetryCount: s.retryCount,
		Info:              &infoCopy,
	}, nil
}

// CurrentInfo returns the StartBody of the currently or most recently
// running core, even when GetClash would fail — the dispatcher needs
// this to know the socket_path to clean up after StopClash (spec §4.4),
// independent of whether the retry budget happens to be exhausted.
func (s *Supervisor) CurrentInfo() *protocol.StartBody {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return nil
	}
	infoCopy := *s.info
	return &infoCopy
}

// GetLogs returns the log ring's current contents (spec §4.5 "Query",
// §6 "GetLogs").
func (s *Supervisor) GetLogs() []string {
	return s.ring.Snapshot()
}

// splitLogPath separates a log file path into its directory and base
// name, per spec §4.5's "dirname(body.log_file), basename body.log_file".
func splitLogPath(path string) (dir, file string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			if i == 0 {
				return path[:1], path[1:]
			}
			return path[:i], path[i+1:]
		}
	}
	return ".", path
}
