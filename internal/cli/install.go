package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/notifier-e2e/internal/config"
)

func newInstallCommand(env Env, g *globalOptions) *cobra.Command {
	var engine string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the Playwright driver and browser engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if engine == "" {
				if err := config.LoadEnvFile(g.envFile); err != nil {
					return err
				}
				engine = env.Getenv("BROWSER")
			}
			if engine == "" {
				engine = config.DefaultBrowser
			}
			if err := env.Install(engine); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed playwright driver and %s\n", engine)
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "browser", "", "engine to install: chromium, firefox or webkit (default BROWSER or chromium)")
	return cmd
}
