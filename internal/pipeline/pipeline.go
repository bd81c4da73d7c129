package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nace/zimage/internal/bootloader"
	"github.com/nace/zimage/internal/bootstrap"
	"github.com/nace/zimage/internal/config"
	"github.com/nace/zimage/internal/image"
	"github.com/nace/zimage/internal/system"
	"github.com/nace/zimage/internal/ui"
	"github.com/nace/zimage/internal/zpool"
)

// Boot-time units importing and mounting the pool on the built system.
var poolBootUnits = []string{
	"zfs-import-cache",
	"zfs-mount",
	"zfs-import.target",
	"zfs.target",
}

// buildContext carries the mutable state threaded through the ordered steps:
// the live loop device binding and the mount root holding the target tree.
type buildContext struct {
	loopDevice string
	mountRoot  string
}

// Pipeline runs the ordered image provisioning steps. Configuration is
// immutable for the run; every acquired resource is registered on a cleanup
// stack immediately, so any mid-pipeline failure unwinds loop device, pool
// import and mounts in reverse order. Exactly one pipeline may run against
// a given image path and pool name at a time; concurrent runs are
// unsupported.
type Pipeline struct {
	cfg    *config.Config
	log    *ui.Logger
	runner system.Runner

	parts *image.Partitioner
	loops *image.LoopManager
	pools *zpool.Manager
	boot  *bootloader.Installer
	strap *bootstrap.Bootstrapper

	// RefreshPayload forces a bootloader re-download even when cached.
	RefreshPayload bool
}

// New creates a pipeline for one build run
func New(cfg *config.Config, logger *ui.Logger, runner system.Runner) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		log:    logger,
		runner: runner,
		parts:  image.NewPartitioner(runner),
		loops:  image.NewLoopManager(runner),
		pools:  zpool.NewManager(runner),
		boot:   bootloader.NewInstaller(logger),
		strap:  bootstrap.NewBootstrapper(runner),
	}
}

// Run executes the full build: allocate, partition, attach, provision the
// pool, install the bootloader, bootstrap and configure the target, then
// tear everything down. First error aborts; the cleanup stack still
// releases whatever was acquired.
func (p *Pipeline) Run() error {
	cleanup := system.NewCleanupStack()
	defer func() {
		if err := cleanup.Unwind(); err != nil {
			p.log.Warning("Cleanup errors occurred: %v", err)
		}
	}()

	ctx := &buildContext{mountRoot: p.cfg.MountRoot}

	if err := p.provisionImage(ctx, cleanup); err != nil {
		return err
	}
	if err := p.provisionPool(ctx, cleanup); err != nil {
		return err
	}
	if err := p.importAndMount(ctx, cleanup); err != nil {
		return err
	}
	if err := p.installBootloader(ctx); err != nil {
		return err
	}
	if err := p.bootstrapTarget(ctx); err != nil {
		return err
	}

	// Success path: run the teardown tail as explicit ordered steps, then
	// drop the failure-path cleanups.
	if err := p.teardown(ctx); err != nil {
		return err
	}
	cleanup.Clear()

	p.log.Success("Image built: %s", p.cfg.ImageSpec().Path())
	return nil
}

func (p *Pipeline) provisionImage(ctx *buildContext, cleanup *system.CleanupStack) error {
	spec := p.cfg.ImageSpec()

	p.log.Info("Allocating %d byte sparse image at %s", spec.Size, spec.Path())
	if err := image.Create(spec); err != nil {
		return err
	}
	cleanup.Push("remove partial image", func() error {
		return os.Remove(spec.Path())
	})

	p.log.Info("Writing partition table...")
	if err := p.parts.Apply(spec, p.cfg.PartitionLayout()); err != nil {
		return err
	}

	p.log.Info("Attaching loop device...")
	device, err := p.loops.Attach(spec.Path())
	if err != nil {
		return err
	}
	ctx.loopDevice = device
	cleanup.Push("detach loop device", func() error {
		return p.loops.Detach(device)
	})

	p.log.Debug("Image attached at %s", device)
	return nil
}

func (p *Pipeline) provisionPool(ctx *buildContext, cleanup *system.CleanupStack) error {
	poolDev := p.loops.PartitionDevice(ctx.loopDevice, image.PoolIndex)
	espDev := p.loops.PartitionDevice(ctx.loopDevice, image.ESPIndex)

	p.log.Info("Creating pool %s on %s...", p.cfg.Pool.Name, poolDev)
	if err := p.pools.Create(p.cfg.Pool.Name, poolDev, p.cfg.PoolCreateOptions()); err != nil {
		return err
	}
	cleanup.Push("export pool", func() error {
		return p.pools.ExportIfPresent(p.cfg.Pool.Name)
	})

	// Dataset order matters: the ROOT container must exist before children.
	datasets := []struct {
		name string
		opts zpool.DatasetOptions
	}{
		{p.cfg.RootContainerDataset(), zpool.DatasetOptions{Canmount: "off", Mountpoint: "none"}},
		{p.cfg.RootDataset(), zpool.DatasetOptions{Canmount: "noauto", Mountpoint: "/"}},
		{p.cfg.HomeDataset(), zpool.DatasetOptions{Mountpoint: "/home"}},
	}
	for _, ds := range datasets {
		p.log.Info("Creating dataset %s...", ds.name)
		if err := p.pools.CreateDataset(ds.name, ds.opts); err != nil {
			return err
		}
	}

	if err := p.pools.SetBootfs(p.cfg.Pool.Name, p.cfg.RootDataset()); err != nil {
		return err
	}

	p.log.Info("Formatting boot partition %s...", espDev)
	if err := p.runner.Run("mkfs.vfat", "-F", "32", espDev); err != nil {
		return fmt.Errorf("failed to format boot partition: %w", err)
	}
	return nil
}

func (p *Pipeline) importAndMount(ctx *buildContext, cleanup *system.CleanupStack) error {
	pool := p.cfg.Pool.Name

	// The pool is still imported from creation. Export it so the re-import
	// can pin every mountpoint under the mount root; the same guard clears
	// stale imports left by interrupted prior runs.
	if err := p.pools.ExportIfPresent(pool); err != nil {
		return err
	}

	if err := os.MkdirAll(ctx.mountRoot, 0755); err != nil {
		return fmt.Errorf("%w: create mount root: %v", system.ErrIO, err)
	}

	p.log.Info("Importing pool %s under %s...", pool, ctx.mountRoot)
	if err := p.pools.Import(pool, ctx.mountRoot); err != nil {
		return err
	}
	if err := p.pools.MountDataset(p.cfg.RootDataset()); err != nil {
		return err
	}
	if err := p.pools.MountDataset(p.cfg.HomeDataset()); err != nil {
		return err
	}
	cleanup.Push("unmount target tree", func() error {
		return p.unmountAll(ctx.mountRoot)
	})

	espDev := p.loops.PartitionDevice(ctx.loopDevice, image.ESPIndex)
	espMount := filepath.Join(ctx.mountRoot, "boot", "efi")
	if err := os.MkdirAll(espMount, 0755); err != nil {
		return fmt.Errorf("%w: create ESP mountpoint: %v", system.ErrIO, err)
	}
	if err := p.runner.Run("mount", espDev, espMount); err != nil {
		return fmt.Errorf("failed to mount boot partition: %w", err)
	}
	return nil
}

func (p *Pipeline) installBootloader(ctx *buildContext) error {
	cfg := p.cfg.Bootloader
	payload, err := p.boot.EnsurePayload(cfg.Cache, cfg.URL, cfg.SHA256, p.RefreshPayload)
	if err != nil {
		return err
	}
	return p.boot.Install(payload, filepath.Join(ctx.mountRoot, "boot", "efi"))
}

func (p *Pipeline) bootstrapTarget(ctx *buildContext) error {
	cfg := p.cfg.Bootstrap

	p.log.Info("Bootstrapping %s into %s...", cfg.Release, ctx.mountRoot)
	err := p.strap.Run(ctx.mountRoot, bootstrap.Config{
		Release:  cfg.Release,
		Mirror:   cfg.Mirror,
		CacheDir: cfg.CacheDir,
		Include:  cfg.Include,
	})
	if err != nil {
		return err
	}

	chroot := bootstrap.NewChroot(p.runner, ctx.mountRoot)

	if err := chroot.CopyHostFiles(); err != nil {
		return err
	}
	if err := chroot.SetHostname(cfg.Hostname); err != nil {
		return err
	}
	if err := chroot.MountVirtualFilesystems(); err != nil {
		return err
	}

	sources := bootstrap.SourcesList(cfg.Mirror, cfg.PartnerMirror, cfg.Release, cfg.Components)
	if err := chroot.WriteSourcesList(sources); err != nil {
		return err
	}

	// The proxy snippet is transient: written before any network operation,
	// removed before the image is sealed.
	if cfg.Proxy.Host != "" {
		if err := chroot.WriteAptProxy(bootstrap.AptProxyConfig(cfg.Proxy.Host, cfg.Proxy.Port)); err != nil {
			return err
		}
		defer func() {
			if err := chroot.RemoveAptProxy(); err != nil {
				p.log.Warning("Failed to remove apt proxy: %v", err)
			}
		}()
	}

	if err := chroot.AptUpdate(); err != nil {
		return err
	}
	if err := chroot.AptDistUpgrade(); err != nil {
		return err
	}
	if err := chroot.AptInstall(cfg.Packages); err != nil {
		return err
	}

	if err := bootstrap.EnableLocales(chroot.LocaleGenPath(), p.cfg.Locale.Locales); err != nil {
		return err
	}
	if err := chroot.GenerateLocales(); err != nil {
		return err
	}
	if err := chroot.SetTimezone(p.cfg.Locale.Timezone); err != nil {
		return err
	}

	kb := p.cfg.Locale.Keyboard
	if err := chroot.SetKeyboard(bootstrap.KeyboardConfig(kb.Model, kb.Layout, kb.Variant, kb.Options)); err != nil {
		return err
	}

	if err := chroot.EnableServices(poolBootUnits...); err != nil {
		return err
	}
	return chroot.RebuildInitramfs()
}

// teardown is the cleanup tail: unmount everything under the mount root,
// export the pool, detach the loop device.
func (p *Pipeline) teardown(ctx *buildContext) error {
	p.log.Info("Unmounting target tree...")
	if err := p.unmountAll(ctx.mountRoot); err != nil {
		return err
	}
	if err := p.pools.ExportIfPresent(p.cfg.Pool.Name); err != nil {
		return err
	}
	p.log.Info("Detaching loop device...")
	return p.loops.Detach(ctx.loopDevice)
}

// unmountAll recursively unmounts everything below root in this namespace
// (datasets, ESP, bind mounts) and waits for the mount table to settle.
func (p *Pipeline) unmountAll(root string) error {
	if err := p.runner.Run("umount", "-R", root); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", root, err)
	}
	return system.WaitSettle("unmount of "+root, func() (bool, error) {
		mounted, err := system.HasMountsUnder(root)
		return !mounted, err
	})
}
