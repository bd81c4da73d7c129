package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"

	"github.com/nace/zimage/internal/image"
	"github.com/nace/zimage/internal/zpool"
)

// ImageConfig locates and sizes the raw image file.
type ImageConfig struct {
	Dir  string
	Name string
	Size uint64
}

// LayoutConfig fixes the GPT layout. All values must be MiB-aligned.
type LayoutConfig struct {
	ESPStart    uint64
	ESPSize     uint64
	TailReserve uint64
}

// PoolConfig names the pool and its feature set.
type PoolConfig struct {
	Name          string
	OSDataset     string
	Ashift        int
	Compression   string
	Compatibility string
	Autotrim      bool
}

// ProxyConfig is the optional transient apt proxy.
type ProxyConfig struct {
	Host string
	Port int
}

// BootstrapConfig parameterizes debootstrap and the chroot configuration.
type BootstrapConfig struct {
	Release       string
	Mirror        string
	PartnerMirror string
	Components    []string
	CacheDir      string
	Hostname      string
	Include       []string
	Packages      []string
	Proxy         ProxyConfig
}

// KeyboardConfig mirrors /etc/default/keyboard fields.
type KeyboardConfig struct {
	Model   string
	Layout  string
	Variant string
	Options string
}

// LocaleConfig selects locales, timezone and keyboard for the target.
type LocaleConfig struct {
	Locales  []string
	Timezone string
	Keyboard KeyboardConfig
}

// BootloaderConfig locates the payload and its cache.
type BootloaderConfig struct {
	URL    string
	Cache  string
	SHA256 string
}

// Config is the immutable build configuration threaded through the
// pipeline steps.
type Config struct {
	Image      ImageConfig
	Layout     LayoutConfig
	Pool       PoolConfig
	MountRoot  string
	Bootstrap  BootstrapConfig
	Locale     LocaleConfig
	Bootloader BootloaderConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("image.dir", "/var/tmp/zimage")
	v.SetDefault("image.name", "disk.img")
	v.SetDefault("image.size", "8GB")
	v.SetDefault("layout.esp_start", "1MB")
	v.SetDefault("layout.esp_size", "512MB")
	v.SetDefault("layout.tail_reserve", "8MB")
	v.SetDefault("pool.name", "rpool")
	v.SetDefault("pool.os_dataset", "ubuntu")
	v.SetDefault("pool.ashift", 12)
	v.SetDefault("pool.compression", "lz4")
	v.SetDefault("pool.compatibility", "openzfs-2.1-linux")
	v.SetDefault("pool.autotrim", true)
	v.SetDefault("mount.root", "/mnt/zimage")
	v.SetDefault("bootstrap.release", "jammy")
	v.SetDefault("bootstrap.mirror", "http://archive.ubuntu.com/ubuntu/")
	v.SetDefault("bootstrap.partner_mirror", "http://archive.canonical.com/ubuntu")
	v.SetDefault("bootstrap.components", []string{"main", "restricted", "universe", "multiverse"})
	v.SetDefault("bootstrap.cache_dir", "")
	v.SetDefault("bootstrap.hostname", "cloudimg")
	v.SetDefault("bootstrap.include", []string{})
	v.SetDefault("bootstrap.packages", []string{
		"linux-image-generic",
		"zfsutils-linux",
		"zfs-initramfs",
		"dosfstools",
		"locales",
		"console-setup",
		"tzdata",
	})
	v.SetDefault("bootstrap.proxy.host", "")
	v.SetDefault("bootstrap.proxy.port", 3142)
	v.SetDefault("locale.locales", []string{"en_US"})
	v.SetDefault("locale.timezone", "Etc/UTC")
	v.SetDefault("locale.keyboard.model", "pc105")
	v.SetDefault("locale.keyboard.layout", "us")
	v.SetDefault("locale.keyboard.variant", "")
	v.SetDefault("locale.keyboard.options", "")
	v.SetDefault("bootloader.url", "")
	v.SetDefault("bootloader.cache", "/var/cache/zimage/bootx64.efi")
	v.SetDefault("bootloader.sha256", "")
}

// Load reads configuration with defaults, an optional YAML file and
// ZIMAGE_* environment overrides. An explicit path must exist; otherwise
// zimage.yaml is picked up from the working directory or /etc/zimage when
// present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("zimage")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("zimage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/zimage")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Image.Size, err = parseSize(v, "image.size"); err != nil {
		return nil, err
	}
	if cfg.Layout.ESPStart, err = parseSize(v, "layout.esp_start"); err != nil {
		return nil, err
	}
	if cfg.Layout.ESPSize, err = parseSize(v, "layout.esp_size"); err != nil {
		return nil, err
	}
	if cfg.Layout.TailReserve, err = parseSize(v, "layout.tail_reserve"); err != nil {
		return nil, err
	}

	cfg.Image.Dir = v.GetString("image.dir")
	cfg.Image.Name = v.GetString("image.name")
	cfg.Pool = PoolConfig{
		Name:          v.GetString("pool.name"),
		OSDataset:     v.GetString("pool.os_dataset"),
		Ashift:        v.GetInt("pool.ashift"),
		Compression:   v.GetString("pool.compression"),
		Compatibility: v.GetString("pool.compatibility"),
		Autotrim:      v.GetBool("pool.autotrim"),
	}
	cfg.MountRoot = v.GetString("mount.root")
	cfg.Bootstrap = BootstrapConfig{
		Release:       v.GetString("bootstrap.release"),
		Mirror:        v.GetString("bootstrap.mirror"),
		PartnerMirror: v.GetString("bootstrap.partner_mirror"),
		Components:    v.GetStringSlice("bootstrap.components"),
		CacheDir:      v.GetString("bootstrap.cache_dir"),
		Hostname:      v.GetString("bootstrap.hostname"),
		Include:       v.GetStringSlice("bootstrap.include"),
		Packages:      v.GetStringSlice("bootstrap.packages"),
		Proxy: ProxyConfig{
			Host: v.GetString("bootstrap.proxy.host"),
			Port: v.GetInt("bootstrap.proxy.port"),
		},
	}
	cfg.Locale = LocaleConfig{
		Locales:  v.GetStringSlice("locale.locales"),
		Timezone: v.GetString("locale.timezone"),
		Keyboard: KeyboardConfig{
			Model:   v.GetString("locale.keyboard.model"),
			Layout:  v.GetString("locale.keyboard.layout"),
			Variant: v.GetString("locale.keyboard.variant"),
			Options: v.GetString("locale.keyboard.options"),
		},
	}
	cfg.Bootloader = BootloaderConfig{
		URL:    v.GetString("bootloader.url"),
		Cache:  v.GetString("bootloader.cache"),
		SHA256: v.GetString("bootloader.sha256"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSize(v *viper.Viper, key string) (uint64, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(v.GetString(key))); err != nil {
		return 0, fmt.Errorf("invalid size for %s: %w", key, err)
	}
	return size.Bytes(), nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	const mib = 1 << 20
	switch {
	case c.Image.Name == "":
		return fmt.Errorf("image.name must not be empty")
	case c.Image.Size == 0:
		return fmt.Errorf("image.size must not be zero")
	case c.Layout.ESPStart%mib != 0 || c.Layout.ESPSize%mib != 0 || c.Layout.TailReserve%mib != 0:
		return fmt.Errorf("layout values must be MiB-aligned")
	case c.Pool.Name == "":
		return fmt.Errorf("pool.name must not be empty")
	case c.Pool.OSDataset == "":
		return fmt.Errorf("pool.os_dataset must not be empty")
	case c.MountRoot == "" || c.MountRoot == "/":
		return fmt.Errorf("mount.root must name a dedicated directory")
	case c.Bootstrap.Release == "":
		return fmt.Errorf("bootstrap.release must not be empty")
	}
	return c.PartitionLayout().Validate(c.Image.Size)
}

// ImageSpec returns the image spec for this configuration.
func (c *Config) ImageSpec() image.Spec {
	return image.Spec{
		Dir:  c.Image.Dir,
		Name: c.Image.Name,
		Size: c.Image.Size,
	}
}

// PartitionLayout returns the GPT layout for this configuration.
func (c *Config) PartitionLayout() image.Layout {
	return image.Layout{
		ESPStart:    c.Layout.ESPStart,
		ESPSize:     c.Layout.ESPSize,
		TailReserve: c.Layout.TailReserve,
	}
}

// PoolCreateOptions returns the zpool create options.
func (c *Config) PoolCreateOptions() zpool.CreateOptions {
	return zpool.CreateOptions{
		Ashift:        c.Pool.Ashift,
		Compression:   c.Pool.Compression,
		Compatibility: c.Pool.Compatibility,
		Autotrim:      c.Pool.Autotrim,
	}
}

// RootContainerDataset returns the ROOT container dataset name.
func (c *Config) RootContainerDataset() string {
	return c.Pool.Name + "/ROOT"
}

// RootDataset returns the OS root dataset name.
func (c *Config) RootDataset() string {
	return c.Pool.Name + "/ROOT/" + c.Pool.OSDataset
}

// HomeDataset returns the home dataset name.
func (c *Config) HomeDataset() string {
	return c.Pool.Name + "/home"
}
