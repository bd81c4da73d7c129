package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nace/zimage/internal/config"
	"github.com/nace/zimage/internal/ui"
)

// fakeRunner stubs the whole external tool layer. It records every
// invocation, tracks pool import state across zpool calls, and hands out a
// loop "device" path that exists on disk so the detach guard sees it.
type fakeRunner struct {
	commands [][]string
	imported bool
	loopPath string
	failOn   string
}

func (f *fakeRunner) record(args []string) (string, error) {
	f.commands = append(f.commands, args)
	joined := strings.Join(args, " ")

	if f.failOn != "" && strings.HasPrefix(joined, f.failOn) {
		return "", fmt.Errorf("%s: injected failure", args[0])
	}

	switch {
	case strings.HasPrefix(joined, "losetup -f --show -P"):
		return f.loopPath + "\n", nil
	case strings.HasPrefix(joined, "zpool create"):
		f.imported = true
	case strings.HasPrefix(joined, "zpool export"):
		f.imported = false
	case strings.HasPrefix(joined, "zpool import"):
		f.imported = true
	case strings.HasPrefix(joined, "zpool list"):
		if f.imported {
			return "rpool\n", nil
		}
		return "no pools available\n", nil
	}
	return "", nil
}

func (f *fakeRunner) Run(name string, args ...string) error {
	_, err := f.record(append([]string{name}, args...))
	return err
}

func (f *fakeRunner) RunOutput(name string, args ...string) (string, error) {
	return f.record(append([]string{name}, args...))
}

func (f *fakeRunner) RunCmd(cmd *exec.Cmd) (string, error) {
	return f.record(cmd.Args)
}

func (f *fakeRunner) RunStream(name string, args ...string) error {
	_, err := f.record(append([]string{name}, args...))
	return err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	cache := filepath.Join(base, "cache", "bootx64.efi")
	require.NoError(t, os.MkdirAll(filepath.Dir(cache), 0755))
	require.NoError(t, os.WriteFile(cache, []byte("EFI payload"), 0644))

	return &config.Config{
		Image:  config.ImageConfig{Dir: filepath.Join(base, "images"), Name: "disk.img", Size: 2 << 30},
		Layout: config.LayoutConfig{ESPStart: 1 << 20, ESPSize: 512 << 20, TailReserve: 8 << 20},
		Pool: config.PoolConfig{
			Name:          "rpool",
			OSDataset:     "ubuntu",
			Ashift:        12,
			Compression:   "lz4",
			Compatibility: "openzfs-2.1-linux",
			Autotrim:      true,
		},
		MountRoot: filepath.Join(base, "mnt"),
		Bootstrap: config.BootstrapConfig{
			Release:       "jammy",
			Mirror:        "http://example.test/ubuntu/",
			PartnerMirror: "http://partner.example.test/ubuntu",
			Components:    []string{"main", "restricted", "universe", "multiverse"},
			Hostname:      "cloudimg",
			Packages:      []string{"linux-image-generic", "zfsutils-linux", "zfs-initramfs"},
			Proxy:         config.ProxyConfig{Host: "proxy.internal", Port: 3142},
		},
		Locale: config.LocaleConfig{
			Locales:  []string{"en_US"},
			Timezone: "Etc/UTC",
			Keyboard: config.KeyboardConfig{Model: "pc105", Layout: "us"},
		},
		Bootloader: config.BootloaderConfig{
			URL:   "http://127.0.0.1:1/unreachable",
			Cache: cache,
		},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, runner *fakeRunner) *Pipeline {
	t.Helper()

	// The loop "device" must exist as a file so the detach guard does not
	// short-circuit the cleanup path.
	runner.loopPath = filepath.Join(t.TempDir(), "loop7")
	require.NoError(t, os.WriteFile(runner.loopPath, nil, 0644))

	// A bootstrapped tree would carry locale.gen; the stubbed debootstrap
	// does not, so seed it.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.MountRoot, "etc"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.MountRoot, "etc", "locale.gen"),
		[]byte("#en_US.UTF-8 UTF-8\n#fr_FR.UTF-8 UTF-8\n"), 0644))

	return New(cfg, ui.NewLogger(false, true, true), runner)
}

func commandPrefixes(runner *fakeRunner) []string {
	var out []string
	for _, cmd := range runner.commands {
		out = append(out, strings.Join(cmd, " "))
	}
	return out
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	p := newTestPipeline(t, cfg, runner)

	require.NoError(t, p.Run())

	loop := runner.loopPath
	wantPrefixes := []string{
		"sgdisk --new=1:1M:+512M",
		"losetup -f --show -P",
		"zpool create",
		"zfs create -o canmount=off -o mountpoint=none rpool/ROOT",
		"zfs create -o canmount=noauto -o mountpoint=/ rpool/ROOT/ubuntu",
		"zfs create -o mountpoint=/home rpool/home",
		"zpool set bootfs=rpool/ROOT/ubuntu rpool",
		"mkfs.vfat -F 32 " + loop + "p1",
		"zpool list",   // export guard: pool imported from creation
		"zpool export rpool",
		"zpool list",   // settle poll
		"zpool import -N -R " + cfg.MountRoot + " rpool",
		"zfs mount rpool/ROOT/ubuntu",
		"zfs mount rpool/home",
		"mount " + loop + "p1 " + filepath.Join(cfg.MountRoot, "boot", "efi"),
		"debootstrap jammy " + cfg.MountRoot + " http://example.test/ubuntu/",
		"mount --bind /proc",
		"mount --bind /sys",
		"mount --bind /dev " + filepath.Join(cfg.MountRoot, "dev"),
		"mount --bind /dev/pts",
		"chroot " + cfg.MountRoot + " apt-get update",
		"chroot " + cfg.MountRoot + " apt-get -y dist-upgrade",
		"chroot " + cfg.MountRoot + " apt-get -y install linux-image-generic zfsutils-linux zfs-initramfs",
		"chroot " + cfg.MountRoot + " locale-gen",
		"chroot " + cfg.MountRoot + " dpkg-reconfigure -f noninteractive tzdata",
		"chroot " + cfg.MountRoot + " dpkg-reconfigure -f noninteractive keyboard-configuration",
		"chroot " + cfg.MountRoot + " systemctl enable zfs-import-cache zfs-mount zfs-import.target zfs.target",
		"chroot " + cfg.MountRoot + " update-initramfs -c -k all",
		"umount -R " + cfg.MountRoot,
		"zpool list",   // teardown export guard
		"zpool export rpool",
		"zpool list",   // settle poll
		"losetup -d " + loop,
	}

	got := commandPrefixes(runner)
	require.Len(t, got, len(wantPrefixes))
	for i, prefix := range wantPrefixes {
		require.True(t, strings.HasPrefix(got[i], prefix),
			"command %d = %q, want prefix %q", i, got[i], prefix)
	}
}

func TestRunLeavesConfiguredTarget(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	p := newTestPipeline(t, cfg, runner)

	require.NoError(t, p.Run())

	// Image file survives the successful run.
	require.FileExists(t, cfg.ImageSpec().Path())

	root := cfg.MountRoot
	hostname, err := os.ReadFile(filepath.Join(root, "etc", "hostname"))
	require.NoError(t, err)
	require.Equal(t, "cloudimg\n", string(hostname))

	hosts, err := os.ReadFile(filepath.Join(root, "etc", "hosts"))
	require.NoError(t, err)
	require.Contains(t, string(hosts), "127.0.1.1\tcloudimg\n")

	sources, err := os.ReadFile(filepath.Join(root, "etc", "apt", "sources.list"))
	require.NoError(t, err)
	require.Contains(t, string(sources), "deb http://example.test/ubuntu/ jammy main restricted universe multiverse\n")
	require.Contains(t, string(sources), "deb http://partner.example.test/ubuntu jammy partner\n")

	locales, err := os.ReadFile(filepath.Join(root, "etc", "locale.gen"))
	require.NoError(t, err)
	require.Equal(t, "en_US.UTF-8 UTF-8\n#fr_FR.UTF-8 UTF-8\n", string(locales))

	timezone, err := os.ReadFile(filepath.Join(root, "etc", "timezone"))
	require.NoError(t, err)
	require.Equal(t, "Etc/UTC\n", string(timezone))

	keyboard, err := os.ReadFile(filepath.Join(root, "etc", "default", "keyboard"))
	require.NoError(t, err)
	require.Contains(t, string(keyboard), "XKBLAYOUT=\"us\"")

	// Transient proxy snippet must not persist.
	require.NoFileExists(t, filepath.Join(root, "etc", "apt", "apt.conf.d", "01proxy"))

	// Bootloader payload installed from cache.
	payload, err := os.ReadFile(filepath.Join(root, "boot", "efi", "EFI", "BOOT", "BOOTX64.EFI"))
	require.NoError(t, err)
	require.Equal(t, "EFI payload", string(payload))
}

func TestRunAbortsOnDatasetFailureAndUnwinds(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{failOn: "zfs create"}
	p := newTestPipeline(t, cfg, runner)

	err := p.Run()
	require.Error(t, err)

	got := commandPrefixes(runner)
	for _, cmd := range got {
		require.False(t, strings.HasPrefix(cmd, "debootstrap"),
			"bootstrap must not run after a dataset failure")
		require.False(t, strings.HasPrefix(cmd, "chroot"),
			"chroot steps must not run after a dataset failure")
	}

	// The cleanup stack still exports the pool and detaches the loop
	// device, and the partial image is removed.
	require.Contains(t, got, "zpool export rpool")
	require.Contains(t, got, "losetup -d "+runner.loopPath)
	require.NoFileExists(t, cfg.ImageSpec().Path())
}
