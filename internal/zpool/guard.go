package zpool

import (
	"github.com/nace/zimage/internal/system"
)

// ExportIfPresent exports the named pool when it is currently imported,
// then waits until the export has settled before returning. A pool that is
// not imported is a no-op, which both guards against stale imports from
// interrupted prior runs and makes the call idempotent.
func (m *Manager) ExportIfPresent(name string) error {
	imported, err := m.IsImported(name)
	if err != nil {
		return err
	}
	if !imported {
		return nil
	}

	if err := m.Export(name); err != nil {
		return err
	}

	// Kernel-side teardown is asynchronous; poll the post-condition rather
	// than sleeping a fixed interval.
	return system.WaitSettle("pool "+name+" export", func() (bool, error) {
		imported, err := m.IsImported(name)
		return !imported, err
	})
}
