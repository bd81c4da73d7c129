package zpool

import (
	"fmt"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// CreateOptions carries the pool-level feature set. The root mountpoint is
// always suppressed so nothing auto-mounts at creation.
type CreateOptions struct {
	Ashift        int
	Compression   string
	Compatibility string
	Autotrim      bool
}

// DatasetOptions carries per-dataset mount policy.
type DatasetOptions struct {
	Mountpoint string
	Canmount   string
}

// Manager wraps the zpool and zfs command-line tools
type Manager struct {
	runner system.Runner
}

// NewManager creates a new pool manager
func NewManager(runner system.Runner) *Manager {
	return &Manager{runner: runner}
}

// Create creates a pool on the given device with its root mountpoint set to
// none. The tool rejects a name collision or a device already in use.
func (m *Manager) Create(name, device string, opts CreateOptions) error {
	args := []string{"create"}
	if opts.Ashift > 0 {
		args = append(args, "-o", fmt.Sprintf("ashift=%d", opts.Ashift))
	}
	if opts.Autotrim {
		args = append(args, "-o", "autotrim=on")
	}
	if opts.Compatibility != "" {
		args = append(args, "-o", "compatibility="+opts.Compatibility)
	}
	if opts.Compression != "" {
		args = append(args, "-O", "compression="+opts.Compression)
	}
	args = append(args,
		"-O", "acltype=posixacl",
		"-O", "xattr=sa",
		"-O", "mountpoint=none",
		name, device,
	)

	if err := m.runner.Run("zpool", args...); err != nil {
		return fmt.Errorf("failed to create pool %s: %w", name, err)
	}
	return nil
}

// CreateDataset creates a dataset. Parents must already exist; callers
// create the ROOT container before its children.
func (m *Manager) CreateDataset(name string, opts DatasetOptions) error {
	args := []string{"create"}
	if opts.Canmount != "" {
		args = append(args, "-o", "canmount="+opts.Canmount)
	}
	if opts.Mountpoint != "" {
		args = append(args, "-o", "mountpoint="+opts.Mountpoint)
	}
	args = append(args, name)

	if err := m.runner.Run("zfs", args...); err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	return nil
}

// SetBootfs marks the dataset the bootloader should boot by default.
func (m *Manager) SetBootfs(pool, dataset string) error {
	if err := m.runner.Run("zpool", "set", "bootfs="+dataset, pool); err != nil {
		return fmt.Errorf("failed to set bootfs on %s: %w", pool, err)
	}
	return nil
}

// Export detaches a pool from the host namespace.
func (m *Manager) Export(name string) error {
	if err := m.runner.Run("zpool", "export", name); err != nil {
		return fmt.Errorf("failed to export pool %s: %w", name, err)
	}
	return nil
}

// Import attaches a pool without auto-mounting any dataset, rooting all
// mountpoints under altRoot.
func (m *Manager) Import(name, altRoot string) error {
	if err := m.runner.Run("zpool", "import", "-N", "-R", altRoot, name); err != nil {
		return fmt.Errorf("failed to import pool %s: %w", name, err)
	}
	return nil
}

// MountDataset explicitly mounts one dataset.
func (m *Manager) MountDataset(name string) error {
	if err := m.runner.Run("zfs", "mount", name); err != nil {
		return fmt.Errorf("failed to mount dataset %s: %w", name, err)
	}
	return nil
}

// ListImported returns the names of currently imported pools.
func (m *Manager) ListImported() ([]string, error) {
	output, err := m.runner.RunOutput("zpool", "list", "-H", "-o", "name")
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	output = strings.TrimSpace(output)
	if output == "" || output == "no pools available" {
		return nil, nil
	}
	return strings.Split(output, "\n"), nil
}

// IsImported reports whether the named pool is currently imported.
func (m *Manager) IsImported(name string) (bool, error) {
	pools, err := m.ListImported()
	if err != nil {
		return false, err
	}
	for _, pool := range pools {
		if pool == name {
			return true, nil
		}
	}
	return false, nil
}
