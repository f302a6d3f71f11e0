// Package recovery re-downloads missing managed binaries on demand.
package recovery

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/core-tools/hsu-keeper/pkg/arch"
	"github.com/core-tools/hsu-keeper/pkg/assets"
	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/roles"
)

type Options struct {
	Artifacts []roles.Artifact
	Variant   arch.Variant
	ARMBase   string
	AMDBase   string
	Digests   map[string]string
}

// Ensurer is what a supervisor needs before it spawns a binary.
type Ensurer interface {
	Ensure(ctx context.Context, path string) error
}

// Coordinator runs full-set recovery passes. Passes are serialized so two roles
// missing binaries at once never download the same path concurrently.
type Coordinator struct {
	options Options
	fetcher assets.Fetcher
	logger  logging.Logger
	mutex   sync.Mutex
}

func NewCoordinator(options Options, fetcher assets.Fetcher, logger logging.Logger) *Coordinator {
	return &Coordinator{
		options: options,
		fetcher: fetcher,
		logger:  logger,
	}
}

func (c *Coordinator) base() string {
	if c.options.Variant == arch.VariantARM {
		return c.options.ARMBase
	}
	return c.options.AMDBase
}

// Descriptors builds one download descriptor per required artifact for the
// configured architecture.
func (c *Coordinator) Descriptors() []assets.Descriptor {
	base := strings.TrimSuffix(c.base(), "/")
	descriptors := make([]assets.Descriptor, 0, len(c.options.Artifacts))
	for _, artifact := range c.options.Artifacts {
		descriptors = append(descriptors, assets.Descriptor{
			Name:   artifact.Name,
			Path:   artifact.Path,
			URL:    base + "/" + artifact.Name,
			Digest: c.options.Digests[artifact.Name],
		})
	}
	return descriptors
}

// FetchMissing downloads every required artifact whose path is absent. One
// artifact failing does not stop the others; all failures are returned together.
func (c *Coordinator) FetchMissing(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.fetchMissing(ctx)
}

func (c *Coordinator) fetchMissing(ctx context.Context) error {
	failures := errors.NewErrorCollection()
	for _, descriptor := range c.Descriptors() {
		if assets.Exists(descriptor.Path) {
			continue
		}
		if ctx.Err() != nil {
			failures.Add(errors.NewCancelledError("recovery pass cancelled", ctx.Err()))
			break
		}
		if _, err := c.fetcher.Fetch(ctx, descriptor); err != nil {
			failures.Add(err)
		}
	}
	return failures.ToError()
}

// Ensure returns nil once path exists and is executable. A missing path triggers
// one full recovery pass; if path is still absent afterwards a recovery error is
// returned and the caller decides when to try again.
func (c *Coordinator) Ensure(ctx context.Context, path string) error {
	if assets.Exists(path) {
		return nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// another role may have finished a pass while we waited
	if !assets.Exists(path) {
		c.logger.Warnf("Binary missing, starting recovery pass, path: %s", path)
		if err := c.fetchMissing(ctx); err != nil {
			c.logger.Warnf("Recovery pass finished with failures: %v", err)
		}
	}

	if !assets.Exists(path) {
		return errors.NewRecoveryError("binary still missing after recovery", nil).WithContext("path", path)
	}
	if err := os.Chmod(path, assets.ExecutableMode); err != nil {
		return errors.NewIOError("failed to mark recovered binary executable", err).WithContext("path", path)
	}
	c.logger.Infof("Binary recovered, path: %s", path)
	return nil
}
