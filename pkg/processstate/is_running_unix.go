//go:build !windows

package processstate

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/core-tools/hsu-keeper/pkg/errors"
)

func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	// signal 0 only probes for existence and permission
	err := unix.Kill(pid, 0)
	switch err {
	case nil, unix.EPERM:
		return true, nil
	case unix.ESRCH:
		return false, nil
	}
	return false, errors.NewProcessError("failed to probe process", err).WithContext("pid", pid)
}

// IsSelf reports whether pid is this process or the process group it belongs to.
func IsSelf(pid int) bool {
	return pid == os.Getpid() || pid == unix.Getpgrp()
}

// ExecutablePath returns the image the process is running. It needs procfs;
// elsewhere it fails and callers must treat the process as unknown.
func ExecutablePath(pid int) (string, error) {
	if pid <= 0 {
		return "", errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	path, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", errors.NewProcessError("failed to resolve process executable", err).WithContext("pid", pid)
	}
	// the binary may have been replaced by a recovery pass since the spawn
	return strings.TrimSuffix(path, " (deleted)"), nil
}

// Terminate sends SIGTERM to the process group led by pid, or to pid alone
// when it does not lead a group of its own.
func Terminate(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	if IsSelf(pid) {
		return errors.NewValidationError("refusing to signal own process", nil).WithContext("pid", pid)
	}

	target := pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		target = -pid
	}
	if err := unix.Kill(target, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return errors.NewProcessError("failed to terminate process", err).WithContext("pid", pid)
	}
	return nil
}
