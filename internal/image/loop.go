package image

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// LoopManager handles loop device operations
type LoopManager struct {
	runner system.Runner
}

// NewLoopManager creates a new loop manager
func NewLoopManager(runner system.Runner) *LoopManager {
	return &LoopManager{runner: runner}
}

// Attach binds the image file to the next free loop device with partition
// scanning enabled and returns the device path. The image partitions become
// addressable via PartitionDevice.
func (m *LoopManager) Attach(path string) (string, error) {
	if !system.FileExists(path) {
		return "", fmt.Errorf("%w: image file %s", system.ErrNotFound, path)
	}

	output, err := m.runner.RunOutput("losetup", "-f", "--show", "-P", path)
	if err != nil {
		return "", fmt.Errorf("%w: attach loop device: %v", system.ErrResourceExhausted, err)
	}
	return strings.TrimSpace(output), nil
}

// Detach releases a loop device binding. Safe to call during cleanup: a
// missing or already-detached device is not an error.
func (m *LoopManager) Detach(device string) error {
	if device == "" {
		return nil
	}
	if _, err := os.Stat(device); os.IsNotExist(err) {
		return nil
	}

	if err := m.runner.Run("losetup", "-d", device); err != nil {
		return fmt.Errorf("failed to detach loop device %s: %w", device, err)
	}
	return nil
}

// PartitionDevice returns the device node for partition n of a loop device
// (/dev/loop0 -> /dev/loop0p1).
func (m *LoopManager) PartitionDevice(device string, n int) string {
	if device == "" {
		return ""
	}
	if last := device[len(device)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", device, n)
	}
	return fmt.Sprintf("%s%d", device, n)
}

// FindByFile finds the loop device backing a file, or "" if none.
func (m *LoopManager) FindByFile(path string) (string, error) {
	output, err := m.runner.RunOutput("losetup", "-j", path)
	if err != nil || strings.TrimSpace(output) == "" {
		return "", nil
	}

	// Parse: "/dev/loop0: []: (/path/to/file)"
	parts := strings.SplitN(output, ":", 2)
	if len(parts) > 0 {
		return strings.TrimSpace(parts[0]), nil
	}
	return "", nil
}

// losetupDevice represents a loop device from losetup -l -J output
type losetupDevice struct {
	Name     string `json:"name"`
	BackFile string `json:"back-file"`
}

type losetupOutput struct {
	LoopDevices []losetupDevice `json:"loopdevices"`
}

// GetAll returns all loop devices with their backing files
func (m *LoopManager) GetAll() (map[string]string, error) {
	output, err := m.runner.RunOutput("losetup", "-l", "-J")
	if err != nil {
		return nil, fmt.Errorf("failed to list loop devices: %w", err)
	}
	if strings.TrimSpace(output) == "" {
		return map[string]string{}, nil
	}

	var result losetupOutput
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		return nil, fmt.Errorf("failed to parse losetup output: %w", err)
	}

	devices := make(map[string]string)
	for _, dev := range result.LoopDevices {
		if dev.BackFile != "" {
			devices[dev.Name] = dev.BackFile
		}
	}

	return devices, nil
}
