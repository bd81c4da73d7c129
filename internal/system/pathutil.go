package system

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// AvailableSpace returns available space in bytes on the filesystem that
// would hold path.
func AvailableSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &stat); err != nil {
		return 0, fmt.Errorf("failed to get filesystem stats: %w", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// mountsPath is a variable so tests can point at a fixture.
var mountsPath = "/proc/mounts"

// HasMountsUnder reports whether any mount target in this namespace sits at
// or below root.
func HasMountsUnder(root string) (bool, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return false, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	prefix := strings.TrimRight(root, "/")
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		target := fields[1]
		if target == prefix || strings.HasPrefix(target, prefix+"/") {
			return true, nil
		}
	}
	return false, scanner.Err()
}
