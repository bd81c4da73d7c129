package bootstrap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// Virtual filesystems the chroot needs for any package-manager operation
// that touches devices or process info.
var virtualMounts = []string{"/proc", "/sys", "/dev", "/dev/pts"}

// Host files copied into the target so pool identity and name resolution
// remain valid inside the chroot.
var hostFiles = []string{"/etc/hostid", "/etc/resolv.conf"}

const aptProxyFile = "etc/apt/apt.conf.d/01proxy"

// Chroot executes configuration steps with the mounted target root
// substituted as process root.
type Chroot struct {
	Root   string
	runner system.Runner
}

// NewChroot creates a chroot handle for a mounted target root
func NewChroot(runner system.Runner, root string) *Chroot {
	return &Chroot{
		Root:   root,
		runner: runner,
	}
}

func (c *Chroot) path(parts ...string) string {
	return filepath.Join(append([]string{c.Root}, parts...)...)
}

// Run executes a command inside the chroot with a noninteractive frontend.
func (c *Chroot) Run(args ...string) error {
	cmd := exec.Command("chroot", append([]string{c.Root}, args...)...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	_, err := c.runner.RunCmd(cmd)
	return err
}

// CopyHostFiles copies host identity and resolution files into the target.
// A missing hostid on the host is tolerated; resolv.conf is required for
// any network operation inside the chroot.
func (c *Chroot) CopyHostFiles() error {
	for _, src := range hostFiles {
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) && filepath.Base(src) == "hostid" {
				continue
			}
			return fmt.Errorf("%w: read %s: %v", system.ErrIO, src, err)
		}
		if err := c.writeFile(strings.TrimPrefix(src, "/"), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// MountVirtualFilesystems bind-mounts /proc, /sys, /dev and /dev/pts from
// the host into the target. The recursive unmount of the mount root tears
// them down again.
func (c *Chroot) MountVirtualFilesystems() error {
	for _, src := range virtualMounts {
		dst := c.path(src)
		if err := os.MkdirAll(dst, 0755); err != nil {
			return fmt.Errorf("%w: create %s: %v", system.ErrIO, dst, err)
		}
		if err := c.runner.Run("mount", "--bind", src, dst); err != nil {
			return fmt.Errorf("failed to bind-mount %s: %w", src, err)
		}
	}
	return nil
}

// SetHostname writes the target hostname and appends the matching
// 127.0.1.1 alias to the hosts file.
func (c *Chroot) SetHostname(hostname string) error {
	if err := c.writeFile("etc/hostname", []byte(hostname+"\n"), 0644); err != nil {
		return err
	}

	hostsPath := c.path("etc", "hosts")
	existing, err := os.ReadFile(hostsPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: read hosts file: %v", system.ErrIO, err)
	}

	entry := HostsEntry(hostname)
	if strings.Contains(string(existing), entry) {
		return nil
	}
	return c.writeFile("etc/hosts", append(existing, entry...), 0644)
}

// WriteSourcesList installs the rendered package-repository source list.
func (c *Chroot) WriteSourcesList(content string) error {
	return c.writeFile("etc/apt/sources.list", []byte(content), 0644)
}

// WriteAptProxy writes the transient proxy snippet. Pair with
// RemoveAptProxy so the proxy never persists into the final image.
func (c *Chroot) WriteAptProxy(content string) error {
	return c.writeFile(aptProxyFile, []byte(content), 0644)
}

// RemoveAptProxy deletes the transient proxy snippet.
func (c *Chroot) RemoveAptProxy() error {
	if err := os.Remove(c.path(aptProxyFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove apt proxy: %v", system.ErrIO, err)
	}
	return nil
}

// AptUpdate refreshes the package index inside the chroot.
func (c *Chroot) AptUpdate() error {
	return c.Run("apt-get", "update")
}

// AptDistUpgrade applies the full upgrade inside the chroot.
func (c *Chroot) AptDistUpgrade() error {
	return c.Run("apt-get", "-y", "dist-upgrade")
}

// AptInstall installs packages inside the chroot.
func (c *Chroot) AptInstall(packages []string) error {
	return c.Run(append([]string{"apt-get", "-y", "install"}, packages...)...)
}

// LocaleGenPath returns the target's locale-definition file.
func (c *Chroot) LocaleGenPath() string {
	return c.path("etc", "locale.gen")
}

// GenerateLocales regenerates locales from the definition file.
func (c *Chroot) GenerateLocales() error {
	return c.Run("locale-gen")
}

// SetTimezone writes the timezone file and reconfigures tzdata from it.
func (c *Chroot) SetTimezone(timezone string) error {
	if err := c.writeFile("etc/timezone", []byte(timezone+"\n"), 0644); err != nil {
		return err
	}
	return c.Run("dpkg-reconfigure", "-f", "noninteractive", "tzdata")
}

// SetKeyboard writes the keyboard configuration and reconfigures
// console-setup from it.
func (c *Chroot) SetKeyboard(content string) error {
	if err := c.writeFile("etc/default/keyboard", []byte(content), 0644); err != nil {
		return err
	}
	return c.Run("dpkg-reconfigure", "-f", "noninteractive", "keyboard-configuration")
}

// EnableServices enables boot-time units inside the chroot.
func (c *Chroot) EnableServices(units ...string) error {
	return c.Run(append([]string{"systemctl", "enable"}, units...)...)
}

// RebuildInitramfs rebuilds the initramfs for all installed kernels.
func (c *Chroot) RebuildInitramfs() error {
	return c.Run("update-initramfs", "-c", "-k", "all")
}

func (c *Chroot) writeFile(rel string, data []byte, perm os.FileMode) error {
	path := c.path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", system.ErrIO, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("%w: write %s: %v", system.ErrIO, path, err)
	}
	return nil
}
