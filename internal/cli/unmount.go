package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nace/zimage/internal/config"
	"github.com/nace/zimage/internal/system"
)

// UnmountCommand runs the standalone teardown tail: recursive unmount,
// pool export, loop detach. Safe on partially torn-down state, so it also
// recovers from an interrupted build.
type UnmountCommand struct {
	ctx        *GlobalContext
	configPath string
}

// NewUnmountCommand creates the unmount command
func NewUnmountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UnmountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "unmount [image-path]",
		Short: "Unmount a mounted image and release its resources",
		Long: `Recursively unmount everything under the configured mount root, export
the pool and detach the loop device. Each step is skipped when its
resource is already gone, so this also cleans up after an interrupted
build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.configPath, "config", "c", "", "Build configuration file (YAML)")

	return cobraCmd
}

// Run executes the unmount command
func (c *UnmountCommand) Run(cmd *cobra.Command, args []string) error {
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

	mounted, err := system.HasMountsUnder(cfg.MountRoot)
	if err != nil {
		return err
	}
	if mounted {
		c.ctx.Logger.Info("Unmounting %s...", cfg.MountRoot)
		if err := c.ctx.Executor.Run("umount", "-R", cfg.MountRoot); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", cfg.MountRoot, err)
		}
		err := system.WaitSettle("unmount of "+cfg.MountRoot, func() (bool, error) {
			mounted, err := system.HasMountsUnder(cfg.MountRoot)
			return !mounted, err
		})
		if err != nil {
			return err
		}
	}

	if err := c.ctx.Pools.ExportIfPresent(cfg.Pool.Name); err != nil {
		return err
	}

	device, err := c.ctx.Loops.FindByFile(imagePath)
	if err != nil {
		return err
	}
	if device != "" {
		c.ctx.Logger.Info("Detaching loop device %s...", device)
		if err := c.ctx.Loops.Detach(device); err != nil {
			// The kernel may auto-detach once the last user is gone.
			c.ctx.Logger.Warning("Failed to detach loop device: %v", err)
		}
	}

	c.ctx.Logger.Success("Image released")
	return nil
}
