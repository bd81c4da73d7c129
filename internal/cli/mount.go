package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nace/zimage/internal/config"
	"github.com/nace/zimage/internal/image"
	"github.com/nace/zimage/internal/system"
)

// MountCommand attaches an existing image and mounts its datasets for
// inspection or repair.
type MountCommand struct {
	ctx        *GlobalContext
	configPath string
}

// NewMountCommand creates the mount command
func NewMountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &MountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "mount [image-path]",
		Short: "Mount a built image for inspection",
		Long: `Attach a built image via loopback, import its pool under the configured
mount root and mount the OS root dataset, home dataset and EFI partition.`,
		Args: cobra.MaximumNArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.configPath, "config", "c", "", "Build configuration file (YAML)")

	return cobraCmd
}

// Run executes the mount command
func (c *MountCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	imagePath := cfg.ImageSpec().Path()
	if len(args) > 0 {
		if imagePath, err = filepath.Abs(args[0]); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if !system.FileExists(imagePath) {
		return fmt.Errorf("%w: image file %s", system.ErrNotFound, imagePath)
	}

	// Reuse an existing binding so mounting twice does not burn a second
	// loop device.
	device, err := c.ctx.Loops.FindByFile(imagePath)
	if err != nil {
		return err
	}

	cleanup := system.NewCleanupStack()
	defer func() {
		if err := cleanup.Unwind(); err != nil {
			c.ctx.Logger.Warning("Cleanup errors occurred: %v", err)
		}
	}()

	if device == "" {
		c.ctx.Logger.Info("Attaching loop device...")
		if device, err = c.ctx.Loops.Attach(imagePath); err != nil {
			return err
		}
		cleanup.Push("detach loop device", func() error {
			return c.ctx.Loops.Detach(device)
		})
	}

	pool := cfg.Pool.Name
	if err := c.ctx.Pools.ExportIfPresent(pool); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.MountRoot, 0755); err != nil {
		return fmt.Errorf("%w: create mount root: %v", system.ErrIO, err)
	}

	c.ctx.Logger.Info("Importing pool %s under %s...", pool, cfg.MountRoot)
	if err := c.ctx.Pools.Import(pool, cfg.MountRoot); err != nil {
		return err
	}
	cleanup.Push("export pool", func() error {
		return c.ctx.Pools.ExportIfPresent(pool)
	})

	if err := c.ctx.Pools.MountDataset(cfg.RootDataset()); err != nil {
		return err
	}
	if err := c.ctx.Pools.MountDataset(cfg.HomeDataset()); err != nil {
		return err
	}

	espDev := c.ctx.Loops.PartitionDevice(device, image.ESPIndex)
	espMount := filepath.Join(cfg.MountRoot, "boot", "efi")
	if err := os.MkdirAll(espMount, 0755); err != nil {
		return fmt.Errorf("%w: create ESP mountpoint: %v", system.ErrIO, err)
	}
	if err := c.ctx.Executor.Run("mount", espDev, espMount); err != nil {
		return fmt.Errorf("failed to mount boot partition: %w", err)
	}

	cleanup.Clear()

	c.ctx.Logger.Success("Image mounted under %s", cfg.MountRoot)
	return nil
}
