package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nace/zimage/internal/config"
	"github.com/nace/zimage/internal/pipeline"
	"github.com/nace/zimage/internal/system"
	"github.com/nace/zimage/internal/ui"
)

// BuildCommand runs the full image provisioning pipeline
type BuildCommand struct {
	ctx            *GlobalContext
	configPath     string
	refreshPayload bool
	overwrite      bool
}

// NewBuildCommand creates the build command
func NewBuildCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &BuildCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a bootable ZFS-root disk image",
		Long: `Build a bootable cloud disk image: allocate and partition a raw image,
attach it via loopback, create the root pool and datasets, install the
bootloader payload, bootstrap the distribution into the mounted root and
configure it in a chroot, then unmount, export and detach.`,
		Args: cobra.NoArgs,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.configPath, "config", "c", "", "Build configuration file (YAML)")
	cobraCmd.Flags().BoolVar(&cmd.refreshPayload, "refresh-payload", false, "Re-download the bootloader payload even when cached")
	cobraCmd.Flags().BoolVar(&cmd.overwrite, "overwrite", false, "Remove an existing image file without asking")

	return cobraCmd
}

// Run executes the build command
func (c *BuildCommand) Run(cmd *cobra.Command, args []string) error {
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
	if system.FileExists(imagePath) {
		if !c.overwrite && !ui.PromptConfirm(fmt.Sprintf("Image %s exists, remove it", imagePath)) {
			return fmt.Errorf("%w: image file %s", system.ErrAlreadyExists, imagePath)
		}
		if err := os.Remove(imagePath); err != nil {
			return fmt.Errorf("failed to remove existing image: %w", err)
		}
	}

	if avail, err := system.AvailableSpace(imagePath); err == nil && avail < cfg.Image.Size {
		c.ctx.Logger.Warning("Filesystem holding %s has %d bytes free for a %d byte image; "+
			"a fully written image will not fit", imagePath, avail, cfg.Image.Size)
	}

	p := pipeline.New(cfg, c.ctx.Logger, c.ctx.Executor)
	p.RefreshPayload = c.refreshPayload
	return p.Run()
}
