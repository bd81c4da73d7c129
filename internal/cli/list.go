package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nace/zimage/internal/system"
	"github.com/nace/zimage/internal/ui"
)

// ListCommand lists loop-attached images and their pools
type ListCommand struct {
	ctx  *GlobalContext
	json bool
}

// NewListCommand creates the list command
func NewListCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ListCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "list",
		Short: "List attached images and imported pools",
		Long:  `List loop-attached image files, annotated with the pool imported from them.`,
		Args:  cobra.NoArgs,
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.json, "json", "j", false, "JSON output")

	return cobraCmd
}

// Run executes the list command
func (c *ListCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	attachments, err := c.ctx.Discovery.DiscoverActive()
	if err != nil {
		return fmt.Errorf("failed to discover attachments: %w", err)
	}

	if len(attachments) == 0 {
		fmt.Println("No attached images found")
		return nil
	}

	if c.json {
		return ui.PrintJSON(attachments)
	}

	table := ui.NewTable("IMAGE", "LOOP DEVICE", "POOL", "MOUNT ROOT")
	for _, att := range attachments {
		pool := att.Pool
		if pool == "" {
			pool = "-"
		}
		altRoot := att.AltRoot
		if altRoot == "" {
			altRoot = "-"
		}
		table.AddRow(att.ImagePath, att.LoopDevice, pool, altRoot)
	}
	table.Print()

	return nil
}
