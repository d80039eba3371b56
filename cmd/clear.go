package cmd

import (
	"github.com/luxfi/dbtools/pkg/application"
	"github.com/spf13/cobra"
)

// NewClearCmd creates the clear command
func NewClearCmd(app *application.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the contract cache and state database under the base directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Clear()
		},
	}
	return cmd
}
