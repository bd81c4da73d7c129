package image

import (
	"fmt"

	"github.com/nace/zimage/internal/system"
)

// GPT type codes understood by sgdisk.
const (
	typeESP  = "EF00" // EFI System
	typePool = "BF00" // Solaris root, used by ZFS
)

// Partitioner writes the GPT layout onto the image file
type Partitioner struct {
	runner system.Runner
}

// NewPartitioner creates a new partitioner
func NewPartitioner(runner system.Runner) *Partitioner {
	return &Partitioner{runner: runner}
}

// Apply writes the layout to the image with sgdisk. The image file must
// exist; only the file is mutated, no host state changes.
func (p *Partitioner) Apply(spec Spec, layout Layout) error {
	path := spec.Path()
	if !system.FileExists(path) {
		return fmt.Errorf("%w: image file %s", system.ErrNotFound, path)
	}
	if err := layout.Validate(spec.Size); err != nil {
		return err
	}

	if err := p.runner.Run("sgdisk", sgdiskArgs(path, layout)...); err != nil {
		return fmt.Errorf("failed to partition image: %w", err)
	}
	return nil
}

// sgdiskArgs builds the sgdisk invocation for the two-partition layout.
// Offsets and sizes are passed in whole MiB; the pool partition runs from
// the first free sector to the trailing reserve.
func sgdiskArgs(path string, layout Layout) []string {
	return []string{
		fmt.Sprintf("--new=%d:%dM:+%dM", ESPIndex, layout.ESPStart>>20, layout.ESPSize>>20),
		fmt.Sprintf("--typecode=%d:%s", ESPIndex, typeESP),
		fmt.Sprintf("--change-name=%d:EFI", ESPIndex),
		fmt.Sprintf("--new=%d:0:-%dM", PoolIndex, layout.TailReserve>>20),
		fmt.Sprintf("--typecode=%d:%s", PoolIndex, typePool),
		fmt.Sprintf("--change-name=%d:pool", PoolIndex),
		path,
	}
}
