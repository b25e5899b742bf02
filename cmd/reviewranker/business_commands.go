package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ReviewRanker/internal/app"
)

func newBusinessCommand(ctx *commandContext) *cobra.Command {
	businessCmd := &cobra.Command{
		Use:   "business",
		Short: "Manage catalog businesses",
	}
	businessCmd.AddCommand(newBusinessActiveCommand(ctx, "activate", true))
	businessCmd.AddCommand(newBusinessActiveCommand(ctx, "deactivate", false))
	return businessCmd
}

// Inactive businesses drop out of refreshes, matching and ranked lists; their
// reviews and last ranking stay stored.
func newBusinessActiveCommand(ctx *commandContext, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <businessID>",
		Short: fmt.Sprintf("Mark a business as %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			businessID, err := parseID(args[0], "business")
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				if err := a.Businesses.SetActive(cmd.Context(), businessID, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Business %d %sd\n", businessID, use)
				return nil
			})
		},
	}
}
