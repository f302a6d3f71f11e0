// Package supervisor keeps one managed binary running for the lifetime of the host.
package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/assets"
	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/metrics"
	"github.com/core-tools/hsu-keeper/pkg/recovery"
	"github.com/core-tools/hsu-keeper/pkg/roles"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

const DefaultRestartDelay = 5000 * time.Millisecond

type Options struct {
	RestartDelay time.Duration
	// RestartOnLaunchError schedules a delayed restart after a failed spawn,
	// the same way an exit does. When false the role goes idle.
	RestartOnLaunchError bool
	// PIDFiles, when set, records the PID of the running child.
	PIDFiles PIDRecorder
}

type PIDRecorder interface {
	WritePIDFile(role string, pid int, binary string) error
	RemovePIDFile(role string) error
}

type Supervisor struct {
	role     roles.Role
	layout   workdir.Layout
	ensurer  recovery.Ensurer
	launcher Launcher
	sink     StatusSink
	options  Options
	logger   logging.Logger

	// after is time.After, replaceable in tests
	after func(time.Duration) <-chan time.Time

	mutex sync.Mutex
	state State
	pid   int
}

func NewSupervisor(role roles.Role, layout workdir.Layout, ensurer recovery.Ensurer, launcher Launcher, sink StatusSink, options Options, logger logging.Logger) *Supervisor {
	if options.RestartDelay <= 0 {
		options.RestartDelay = DefaultRestartDelay
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Supervisor{
		role:     role,
		layout:   layout,
		ensurer:  ensurer,
		launcher: launcher,
		sink:     sink,
		options:  options,
		logger:   logging.WithPrefix(logger, "role: "+role.Name()+" , "),
		after:    time.After,
		state:    StateIdle,
	}
}

func (s *Supervisor) Name() string {
	return s.role.Name()
}

// State returns the current state and, while running, the child's PID.
func (s *Supervisor) State() (State, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state, s.pid
}

func (s *Supervisor) setState(state State, pid int) {
	s.mutex.Lock()
	s.state = state
	s.pid = pid
	s.mutex.Unlock()

	s.logger.Debugf("State changed, state: %s, pid: %d", state, pid)
	s.sink.Report(s.role.Name(), state)
}

// Run drives the STARTING -> RUNNING -> EXITED -> STARTING loop until ctx ends.
// At most one child exists at any time; every restart waits the configured delay.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Infof("Supervisor starting, binary: %s, restart delay: %v", s.role.Binary(), s.options.RestartDelay)

	for {
		if ctx.Err() != nil {
			s.setState(StateIdle, 0)
			return errors.NewCancelledError("supervisor stopped", ctx.Err()).WithContext("role", s.role.Name())
		}

		restart := s.runOnce(ctx)
		if !restart {
			s.setState(StateIdle, 0)
			<-ctx.Done()
			continue
		}
		s.wait(ctx)
	}
}

// runOnce performs one STARTING phase and, if a child was spawned, waits for
// it to exit. It returns whether a restart should be scheduled.
func (s *Supervisor) runOnce(ctx context.Context) bool {
	s.setState(StateStarting, 0)

	path := s.role.Binary()
	if err := s.ensureBinary(ctx, path); err != nil {
		s.logger.Errorf("Binary unavailable, restart in %v, path: %s, error: %v", s.options.RestartDelay, path, err)
		return true
	}

	child, err := s.launcher.Launch(ctx, Spec{
		Role: s.role.Name(),
		Dir:  s.layout.Dir,
		Path: path,
		Args: s.role.Args(),
	})
	if err != nil {
		metrics.LaunchErrorsTotal.WithLabelValues(s.role.Name()).Inc()
		if s.options.RestartOnLaunchError {
			s.logger.Errorf("Launch failed, restart in %v, error: %v", s.options.RestartDelay, err)
			return true
		}
		s.logger.Errorf("Launch failed, role stays idle, error: %v", err)
		return false
	}

	metrics.ProcessStartsTotal.WithLabelValues(s.role.Name()).Inc()
	s.setState(StateRunning, child.Pid())
	s.logger.Infof("Process running, PID: %d", child.Pid())
	if s.options.PIDFiles != nil {
		if err := s.options.PIDFiles.WritePIDFile(s.role.Name(), child.Pid(), path); err != nil {
			s.logger.Warnf("Failed to record PID: %v", err)
		}
	}

	waitErr := child.Wait()

	if s.options.PIDFiles != nil {
		if err := s.options.PIDFiles.RemovePIDFile(s.role.Name()); err != nil {
			s.logger.Warnf("Failed to remove PID record: %v", err)
		}
	}

	metrics.ProcessExitsTotal.WithLabelValues(s.role.Name()).Inc()
	s.setState(StateExited, 0)
	signal := ExitSignal(waitErr)
	if signal == "" {
		signal = "none"
	}
	s.logger.Warnf("Process exited, code: %d, signal: %s, restart in %v", ExitCode(waitErr), signal, s.options.RestartDelay)
	return true
}

// ensureBinary makes sure the binary exists and is executable, running a
// recovery pass when it is missing.
func (s *Supervisor) ensureBinary(ctx context.Context, path string) error {
	if !assets.Exists(path) {
		if err := s.ensurer.Ensure(ctx, path); err != nil {
			metrics.RecoveriesTotal.WithLabelValues(s.role.Name(), metrics.ResultFatal).Inc()
			return err
		}
		metrics.RecoveriesTotal.WithLabelValues(s.role.Name(), metrics.ResultReady).Inc()
	}
	return ensureExecutable(path)
}

func (s *Supervisor) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.after(s.options.RestartDelay):
		return true
	}
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}
	if info.Mode()&0111 != 0 && canExecute(path) {
		return nil
	}
	if err := os.Chmod(path, assets.ExecutableMode); err != nil {
		return errors.NewIOError("failed to make file executable", err).WithContext("path", path)
	}
	return nil
}
