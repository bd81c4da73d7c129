package cli

import (
	"github.com/nace/zimage/internal/image"
	"github.com/nace/zimage/internal/system"
	"github.com/nace/zimage/internal/ui"
	"github.com/nace/zimage/internal/zpool"
)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Executor  *system.Executor
	Logger    *ui.Logger
	Loops     *image.LoopManager
	Pools     *zpool.Manager
	Discovery *image.Discovery
}

// NewGlobalContext creates a new global context
func NewGlobalContext(verbose, quiet, noColor, debug bool) *GlobalContext {
	executor := system.NewExecutor(debug)
	logger := ui.NewLogger(verbose, quiet, noColor)

	return &GlobalContext{
		Executor:  executor,
		Logger:    logger,
		Loops:     image.NewLoopManager(executor),
		Pools:     zpool.NewManager(executor),
		Discovery: image.NewDiscovery(executor),
	}
}

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies() error {
	deps := []string{
		"sgdisk",
		"losetup",
		"zpool",
		"zfs",
		"mkfs.vfat",
		"mount",
		"umount",
		"debootstrap",
		"chroot",
	}
	return ctx.Executor.CheckDependencies(deps)
}
