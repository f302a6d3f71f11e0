package supervisor

import (
	"context"
	stdErrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

// Spec describes a single spawn.
type Spec struct {
	Role string
	Dir  string
	Path string
	Args []string
}

// Child is a spawned process.
type Child interface {
	Pid() int
	Wait() error
}

// Launcher spawns children. The process is tied to ctx: cancelling ctx stops it.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Child, error)
}

type ExecLauncherOptions struct {
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay is how long to wait after the termination signal before killing.
	WaitDelay time.Duration
}

type execLauncher struct {
	options ExecLauncherOptions
	logger  logging.Logger
}

// NewExecLauncher returns a launcher that runs binaries from their working
// directory with the keeper's own output streams.
func NewExecLauncher(options ExecLauncherOptions, logger logging.Logger) Launcher {
	if options.Stdout == nil {
		options.Stdout = os.Stdout
	}
	if options.Stderr == nil {
		options.Stderr = os.Stderr
	}
	if options.WaitDelay <= 0 {
		options.WaitDelay = 5 * time.Second
	}
	return &execLauncher{
		options: options,
		logger:  logger,
	}
}

func (l *execLauncher) Launch(ctx context.Context, spec Spec) (Child, error) {
	absDir, err := filepath.Abs(spec.Dir)
	if err != nil {
		return nil, errors.NewIOError("failed to get absolute path", err).WithContext("dir", spec.Dir)
	}
	executable, err := filepath.Abs(spec.Path)
	if err != nil {
		return nil, errors.NewIOError("failed to get absolute path", err).WithContext("path", spec.Path)
	}

	cmd := exec.CommandContext(ctx, executable, spec.Args...)
	// children see themselves invoked as ./name from the working directory
	cmd.Args[0] = "./" + filepath.Base(executable)
	cmd.Dir = absDir
	cmd.Env = os.Environ()
	cmd.Stdout = l.options.Stdout
	cmd.Stderr = l.options.Stderr
	cmd.WaitDelay = l.options.WaitDelay

	setupProcessAttributes(cmd)

	l.logger.Debugf("Spawning process, role: %s, executable: %s, args: %v, dir: %s", spec.Role, executable, spec.Args, absDir)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start the process", err).
			WithContext("role", spec.Role).
			WithContext("executable_path", executable)
	}

	l.logger.Infof("Spawned process, role: %s, PID: %d", spec.Role, cmd.Process.Pid)
	return &execChild{cmd: cmd}, nil
}

type execChild struct {
	cmd *exec.Cmd
}

func (c *execChild) Pid() int {
	return c.cmd.Process.Pid
}

func (c *execChild) Wait() error {
	return c.cmd.Wait()
}

// ExitCode extracts the exit code from a Wait error, 0 for a clean exit and -1
// when the code is unknown (killed by a signal, I/O failure).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if stdErrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
