//go:build windows

package supervisor

import (
	"os/exec"
)

func setupProcessAttributes(cmd *exec.Cmd) {}

func canExecute(path string) bool {
	return true
}

// ExitSignal is always empty: Windows children do not die by signal.
func ExitSignal(err error) string {
	return ""
}
