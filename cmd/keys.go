package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/app"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <owner>",
		Short: "Issue a new active key for owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				key, err := a.Keys().Issue(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), key.Key)
				return err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <key>",
		Short: "Disable a key without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				return a.Keys().Deactivate(cmd.Context(), args[0])
			})
		},
	})
	return cmd
}

func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app.App) error) error {
	a, err := opts.loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.Logger().Warn("close failed", zap.Error(cerr))
		}
	}()
	return fn(a)
}
