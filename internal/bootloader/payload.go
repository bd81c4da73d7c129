package bootloader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nace/zimage/internal/system"
	"github.com/nace/zimage/internal/ui"
)

// Installed location inside the EFI System Partition.
const payloadInstallPath = "EFI/BOOT/BOOTX64.EFI"

// Installer fetches the bootloader payload (reusing a local cache) and
// copies it into the mounted EFI directory tree.
type Installer struct {
	logger *ui.Logger
	client *http.Client
}

// NewInstaller creates a new installer
func NewInstaller(logger *ui.Logger) *Installer {
	return &Installer{
		logger: logger,
		client: http.DefaultClient,
	}
}

// EnsurePayload returns the path of the cached payload, downloading it from
// url only when the cache file is absent or refresh is set. When sha256Hex
// is non-empty the payload is verified both after download and on cache
// reuse.
func (i *Installer) EnsurePayload(cachePath, url, sha256Hex string, refresh bool) (string, error) {
	if !refresh && system.FileExists(cachePath) {
		if err := verifyChecksum(cachePath, sha256Hex); err != nil {
			return "", err
		}
		i.logger.Info("Reusing cached bootloader payload: %s", cachePath)
		return cachePath, nil
	}

	i.logger.Info("Fetching bootloader payload from %s", url)
	if err := i.download(cachePath, url); err != nil {
		return "", err
	}
	if err := verifyChecksum(cachePath, sha256Hex); err != nil {
		return "", err
	}
	return cachePath, nil
}

func (i *Installer) download(cachePath, url string) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return fmt.Errorf("%w: create cache dir: %v", system.ErrFetch, err)
	}

	resp, err := i.client.Get(url)
	if err != nil {
		return fmt.Errorf("%w: %v", system.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s from %s", system.ErrFetch, resp.Status, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cachePath), ".payload-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", system.ErrFetch, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: download payload: %v", system.ErrFetch, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", system.ErrFetch, err)
	}

	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return fmt.Errorf("%w: move payload into cache: %v", system.ErrFetch, err)
	}
	return nil
}

// Install copies the payload into the mounted EFI directory tree, creating
// the directory structure as needed.
func (i *Installer) Install(payloadPath, espRoot string) error {
	target := filepath.Join(espRoot, payloadInstallPath)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create EFI directory tree: %v", system.ErrIO, err)
	}

	data, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("%w: read payload: %v", system.ErrIO, err)
	}
	if err := os.WriteFile(target, data, 0755); err != nil {
		return fmt.Errorf("%w: install payload: %v", system.ErrIO, err)
	}

	i.logger.Info("Installed bootloader payload at %s", target)
	return nil
}

func verifyChecksum(path, sha256Hex string) error {
	if sha256Hex == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open payload: %v", system.ErrFetch, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("%w: hash payload: %v", system.ErrFetch, err)
	}

	if sum := hex.EncodeToString(h.Sum(nil)); sum != sha256Hex {
		return fmt.Errorf("%w: payload checksum mismatch: got %s want %s",
			system.ErrFetch, sum, sha256Hex)
	}
	return nil
}
