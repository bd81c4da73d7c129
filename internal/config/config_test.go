package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "disk.img", cfg.Image.Name)
	require.Equal(t, uint64(8<<30), cfg.Image.Size)
	require.Equal(t, uint64(1<<20), cfg.Layout.ESPStart)
	require.Equal(t, uint64(512<<20), cfg.Layout.ESPSize)
	require.Equal(t, uint64(8<<20), cfg.Layout.TailReserve)
	require.Equal(t, "rpool", cfg.Pool.Name)
	require.Equal(t, "rpool/ROOT", cfg.RootContainerDataset())
	require.Equal(t, "rpool/ROOT/ubuntu", cfg.RootDataset())
	require.Equal(t, "rpool/home", cfg.HomeDataset())
	require.Equal(t, "jammy", cfg.Bootstrap.Release)
	require.Equal(t, []string{"main", "restricted", "universe", "multiverse"}, cfg.Bootstrap.Components)
	require.Equal(t, []string{"en_US"}, cfg.Locale.Locales)
}

func TestLoadFromFile(t *testing.T) {
	content := `
image:
  dir: /tmp/build
  name: cloud.img
  size: 16GB
pool:
  name: tank
  os_dataset: noble
bootstrap:
  release: noble
  proxy:
    host: apt-cacher.internal
`
	path := filepath.Join(t.TempDir(), "zimage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/tmp/build", cfg.Image.Dir)
	require.Equal(t, "cloud.img", cfg.Image.Name)
	require.Equal(t, uint64(16<<30), cfg.Image.Size)
	require.Equal(t, "tank", cfg.Pool.Name)
	require.Equal(t, "tank/ROOT/noble", cfg.RootDataset())
	require.Equal(t, "noble", cfg.Bootstrap.Release)
	require.Equal(t, "apt-cacher.internal", cfg.Bootstrap.Proxy.Host)
	// Defaults still apply to keys the file does not set.
	require.Equal(t, 3142, cfg.Bootstrap.Proxy.Port)
	require.Equal(t, uint64(512<<20), cfg.Layout.ESPSize)
}

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zimage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("image:\n  size: lots\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "image.size")
}

func TestValidateRejectsOversizedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zimage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("image:\n  size: 256MB\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestImageSpecPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cfg.Image.Dir, cfg.Image.Name), cfg.ImageSpec().Path())
}
