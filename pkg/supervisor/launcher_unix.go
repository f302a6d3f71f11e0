//go:build !windows

package supervisor

import (
	stdErrors "errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setupProcessAttributes puts the child in its own process group and makes
// cancellation signal the whole group with SIGTERM.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
}

// canExecute reports whether the current user may execute path.
func canExecute(path string) bool {
	return unix.Access(path, unix.X_OK) == nil
}

// ExitSignal names the signal that terminated the child, or "" when it exited
// on its own.
func ExitSignal(err error) string {
	var exitErr *exec.ExitError
	if !stdErrors.As(err, &exitErr) {
		return ""
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	if name := unix.SignalName(status.Signal()); name != "" {
		return name
	}
	return status.Signal().String()
}
