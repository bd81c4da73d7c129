package bootstrap

import (
	"fmt"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// Config parameterizes the distribution bootstrap.
type Config struct {
	Release  string   // distribution codename
	Mirror   string   // repository base URL, tool default when empty
	CacheDir string   // package cache reused across runs, optional
	Include  []string // extra packages pulled in during bootstrap
}

// Bootstrapper populates a target root with a minimal base system
type Bootstrapper struct {
	runner system.Runner
}

// NewBootstrapper creates a new bootstrapper
func NewBootstrapper(runner system.Runner) *Bootstrapper {
	return &Bootstrapper{runner: runner}
}

// Run invokes debootstrap against the target root. Output streams live;
// a non-zero exit aborts with the tool's own diagnostic.
func (b *Bootstrapper) Run(target string, cfg Config) error {
	var args []string
	if cfg.CacheDir != "" {
		args = append(args, "--cache-dir="+cfg.CacheDir)
	}
	if len(cfg.Include) > 0 {
		args = append(args, "--include="+strings.Join(cfg.Include, ","))
	}
	args = append(args, cfg.Release, target)
	if cfg.Mirror != "" {
		args = append(args, cfg.Mirror)
	}

	if err := b.runner.RunStream("debootstrap", args...); err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", cfg.Release, err)
	}
	return nil
}
