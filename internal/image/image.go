package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nace/zimage/internal/system"
)

// Partition indexes in the GPT layout.
const (
	ESPIndex  = 1
	PoolIndex = 2
)

// Spec identifies the raw image file to operate on.
type Spec struct {
	Dir  string
	Name string
	Size uint64 // total size in bytes
}

// Path returns the full path of the image file.
func (s Spec) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

// Layout describes the two-partition GPT layout: an EFI System Partition at
// a fixed offset and size, and a pool partition spanning the remainder minus
// a trailing margin reserved for the backup GPT headers.
type Layout struct {
	ESPStart    uint64 // bytes
	ESPSize     uint64 // bytes
	TailReserve uint64 // bytes
}

// PoolPartitionSize returns the size the pool partition will get for a given
// total image size.
func (l Layout) PoolPartitionSize(imageSize uint64) uint64 {
	return imageSize - l.ESPStart - l.ESPSize - l.TailReserve
}

// Validate checks the layout fits inside the image.
func (l Layout) Validate(imageSize uint64) error {
	if l.ESPStart+l.ESPSize+l.TailReserve >= imageSize {
		return fmt.Errorf("layout does not fit in %d byte image", imageSize)
	}
	return nil
}

// Create allocates the sparse image file. It fails if the target already
// exists and performs no write in that case.
func Create(spec Spec) error {
	path := spec.Path()

	if err := os.MkdirAll(spec.Dir, 0755); err != nil {
		return fmt.Errorf("%w: create image dir: %v", system.ErrIO, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: image file %s", system.ErrAlreadyExists, path)
		}
		return fmt.Errorf("%w: create image file: %v", system.ErrIO, err)
	}

	// Sparse allocation: extend to the configured size without writing data.
	if err := f.Truncate(int64(spec.Size)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: extend image file: %v", system.ErrIO, err)
	}

	return f.Close()
}
