// Package processfile records the PID of every running child so a restarted
// keeper can stop children orphaned by its previous run.
package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/processstate"
)

const PIDFileSuffix = ".pid"

// Record is the content of a PID file: the child's PID and the binary it was
// spawned from.
type Record struct {
	Pid    int
	Binary string
}

type ProcessFileManager struct {
	dir    string
	logger logging.Logger

	// replaceable in tests
	isRunning  func(int) (bool, error)
	isSelf     func(int) bool
	executable func(int) (string, error)
	terminate  func(int) error
}

func NewProcessFileManager(dir string, logger logging.Logger) *ProcessFileManager {
	return &ProcessFileManager{
		dir:        dir,
		logger:     logger,
		isRunning:  processstate.IsProcessRunning,
		isSelf:     processstate.IsSelf,
		executable: processstate.ExecutablePath,
		terminate:  processstate.Terminate,
	}
}

// GeneratePIDFilePath returns <dir>/<role>.pid.
func (m *ProcessFileManager) GeneratePIDFilePath(role string) string {
	return filepath.Join(m.dir, role+PIDFileSuffix)
}

// WritePIDFile records pid on the first line and the absolute binary path on
// the second.
func (m *ProcessFileManager) WritePIDFile(role string, pid int, binary string) error {
	path := m.GeneratePIDFilePath(role)
	if abs, err := filepath.Abs(binary); err == nil {
		binary = abs
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n%s\n", pid, binary)), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}
	m.logger.Debugf("PID file written, role: %s, pid: %d, path: %s", role, pid, path)
	return nil
}

func (m *ProcessFileManager) ReadPIDFile(role string) (Record, error) {
	path := m.GeneratePIDFilePath(role)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", path)
		}
		return Record{}, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Record{}, errors.NewValidationError("invalid PID file content", err).WithContext("pid_file", path)
	}
	record := Record{Pid: pid}
	if len(lines) > 1 {
		record.Binary = strings.TrimSpace(lines[1])
	}
	return record, nil
}

func (m *ProcessFileManager) RemovePIDFile(role string) error {
	path := m.GeneratePIDFilePath(role)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", path)
	}
	return nil
}

// ReapStale terminates every child still alive from a previous run and
// removes its PID file. A PID is only signalled while it still runs the
// recorded binary or one from the working directory; anything else is a
// reused PID and is left alone. It returns the number of processes signalled.
func (m *ProcessFileManager) ReapStale(roles []string) int {
	reaped := 0
	for _, role := range roles {
		record, err := m.ReadPIDFile(role)
		if err != nil {
			if !errors.IsNotFoundError(err) {
				m.logger.Warnf("Ignoring PID file, role: %s, error: %v", role, err)
				_ = m.RemovePIDFile(role)
			}
			continue
		}

		if m.reapable(role, record) {
			if err := m.terminate(record.Pid); err != nil {
				m.logger.Errorf("Failed to stop stale process, role: %s, pid: %d, error: %v", role, record.Pid, err)
			} else {
				m.logger.Infof("Stopped stale process from a previous run, role: %s, pid: %d", role, record.Pid)
				reaped++
			}
		}

		if err := m.RemovePIDFile(role); err != nil {
			m.logger.Warnf("Failed to remove PID file, role: %s, error: %v", role, err)
		}
	}
	return reaped
}

func (m *ProcessFileManager) reapable(role string, record Record) bool {
	if m.isSelf(record.Pid) {
		m.logger.Warnf("PID file names this keeper, skipping, role: %s, pid: %d", role, record.Pid)
		return false
	}

	running, err := m.isRunning(record.Pid)
	if err != nil {
		m.logger.Warnf("Failed to probe stale process, role: %s, pid: %d, error: %v", role, record.Pid, err)
	}
	if !running {
		return false
	}

	executable, err := m.executable(record.Pid)
	if err != nil {
		m.logger.Warnf("Cannot verify stale process, skipping, role: %s, pid: %d, error: %v", role, record.Pid, err)
		return false
	}
	if !m.owns(record, executable) {
		m.logger.Infof("PID reused by an unrelated process, skipping, role: %s, pid: %d, executable: %s", role, record.Pid, executable)
		return false
	}
	return true
}

// owns reports whether executable is the recorded binary or lives in the
// working directory.
func (m *ProcessFileManager) owns(record Record, executable string) bool {
	executable = canonical(executable)
	if record.Binary != "" && executable == canonical(record.Binary) {
		return true
	}
	rel, err := filepath.Rel(canonical(m.dir), executable)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	// a recovered binary may be gone; resolve its directory instead
	if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		return filepath.Join(dir, filepath.Base(path))
	}
	return filepath.Clean(path)
}
