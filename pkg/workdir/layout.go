// Package workdir names and prepares the single directory holding every managed
// binary, rendered config and log artifact.
package workdir

import (
	"math/rand"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-keeper/pkg/errors"
)

const (
	ProxyConfigFile       = "config.json"
	AgentConfigFile       = "config.yaml"
	TunnelCredentialsFile = "tunnel.json"
	TunnelConfigFile      = "tunnel.yml"
	BootLogFile           = "boot.log"
	SubscriptionFile      = "sub.txt"
	ListFile              = "list.txt"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Namer produces a file name for a managed binary.
type Namer func() string

// RandomName returns six random lowercase letters.
func RandomName() string {
	name := make([]byte, 6)
	for i := range name {
		name[i] = nameAlphabet[rand.Intn(len(nameAlphabet))]
	}
	return string(name)
}

// Layout is fixed for the lifetime of the process. Binary names are drawn once.
type Layout struct {
	Dir           string
	ProxyBinary   string
	AgentV0Binary string
	AgentV1Binary string
	TunnelBinary  string
}

func NewLayout(dir string, namer Namer) Layout {
	if namer == nil {
		namer = RandomName
	}
	seen := make(map[string]bool)
	next := func() string {
		for {
			name := namer()
			if !seen[name] {
				seen[name] = true
				return filepath.Join(dir, name)
			}
		}
	}
	return Layout{
		Dir:           dir,
		AgentV0Binary: next(),
		AgentV1Binary: next(),
		ProxyBinary:   next(),
		TunnelBinary:  next(),
	}
}

// Path joins a fixed file name onto the working directory.
func (l Layout) Path(name string) string {
	return filepath.Join(l.Dir, name)
}

// Prepare creates the working directory if needed.
func (l Layout) Prepare() error {
	if l.Dir == "" {
		return errors.NewValidationError("working directory cannot be empty", nil)
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return errors.NewIOError("failed to create working directory", err).WithContext("dir", l.Dir)
	}
	return nil
}

// WriteFile writes a rendered artifact owned by a single component.
func (l Layout) WriteFile(name string, data []byte) error {
	path := l.Path(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.NewIOError("failed to write file", err).WithContext("path", path)
	}
	return nil
}
