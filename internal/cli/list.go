package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/notifier-e2e/internal/suite"
)

func newListCommand(env Env, g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tests that would run",
		Long: `List the tests that would run with the same selection flags as test.
No browser is started and no credentials are needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := o.filter()
			if err != nil {
				return err
			}
			projects, err := suite.Select(suite.Catalog(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			lines := suite.List(projects)
			for _, line := range lines {
				fmt.Fprintln(out, "  "+line)
			}
			fmt.Fprintf(out, "Total: %d test(s) in %d project(s)\n", len(lines), len(projects))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&o.projects, "project", nil, "only list projects matching this glob (repeatable)")
	cmd.Flags().BoolVar(&o.noDeps, "no-deps", false, "do not list dependency projects of the selected ones")
	cmd.Flags().StringVarP(&o.grep, "grep", "g", "", "only list tests whose title matches this regexp")
	cmd.Flags().StringVar(&o.grepInvert, "grep-invert", "", "skip tests whose title matches this regexp")
	return cmd
}
