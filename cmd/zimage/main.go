package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nace/zimage/internal/cli"
)

var (
	verbose bool
	quiet   bool
	noColor bool
	debug   bool

	ctx  *cli.GlobalContext
	once sync.Once
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zimage",
	Short: "zimage - bootable ZFS-root disk image builder",
	Long: `zimage builds bootable cloud disk images with a ZFS root pool.

It partitions a raw image file for UEFI boot, provisions the root pool
and datasets over a loopback device, installs a bootloader payload and
bootstraps an Ubuntu base system into the mounted root, driving the
standard system tools (sgdisk, losetup, zpool/zfs, debootstrap).`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Update context components with parsed flag values
		once.Do(func() {
			*ctx = *cli.NewGlobalContext(verbose, quiet, noColor, debug)
		})
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Create initial context with default values
	// Will be updated in PersistentPreRun with parsed flag values
	ctx = cli.NewGlobalContext(false, false, false, false)

	// Register commands
	rootCmd.AddCommand(cli.NewBuildCommand(ctx))
	rootCmd.AddCommand(cli.NewMountCommand(ctx))
	rootCmd.AddCommand(cli.NewUnmountCommand(ctx))
	rootCmd.AddCommand(cli.NewListCommand(ctx))

	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
