package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/calsweep/internal/runtime"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize calsweep against your Google account",
		Long: "Runs the OAuth installed-app flow on a loopback port and stores the\n" +
			"resulting token in the configured token store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			oc, err := oauthConfig(cfg)
			if err != nil {
				return err
			}
			if err := runtime.Authorize(cmd.Context(), oc, tokenStore(cfg), cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("authorize: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token saved.")
			return nil
		},
	}
}
