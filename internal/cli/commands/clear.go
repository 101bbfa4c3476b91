package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// NewClearCommand creates the clear command.
func NewClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record from the state store",
		Long: `Delete every tracked record. The next run registers all rows again
and regenerates every node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the state store without --yes")
			}
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.Store.ClearAll(cmd.Context()); err != nil {
				return err
			}
			cc.Logger.Info("state store cleared", "path", cc.Store.Path())
			cc.Renderer.Success("Cleared " + cc.Store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	return cmd
}
