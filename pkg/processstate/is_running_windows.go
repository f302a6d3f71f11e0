//go:build windows

package processstate

import (
	"os"

	"golang.org/x/sys/windows"

	"github.com/core-tools/hsu-keeper/pkg/errors"
)

const stillActive = 259

func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// no such process, or not ours to look at
		return false, nil
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, errors.NewProcessError("failed to query exit code", err).WithContext("pid", pid)
	}
	return exitCode == stillActive, nil
}

func IsSelf(pid int) bool {
	return pid == os.Getpid()
}

func ExecutablePath(pid int) (string, error) {
	if pid <= 0 {
		return "", errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return "", errors.NewProcessError("failed to open process", err).WithContext("pid", pid)
	}
	defer windows.CloseHandle(handle)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", errors.NewProcessError("failed to resolve process executable", err).WithContext("pid", pid)
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func Terminate(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	if IsSelf(pid) {
		return errors.NewValidationError("refusing to signal own process", nil).WithContext("pid", pid)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := process.Kill(); err != nil && err != os.ErrProcessDone {
		return errors.NewProcessError("failed to terminate process", err).WithContext("pid", pid)
	}
	return nil
}
