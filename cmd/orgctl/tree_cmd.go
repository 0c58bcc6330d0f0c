package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"organiflow/api/internal/hierarchy"
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	var flat bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the org chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			records, err := client.ListEmployees(cmd.Context())
			if err != nil {
				return err
			}
			forest := hierarchy.Build(records)
			if flat {
				for _, e := range hierarchy.Flatten(forest) {
					fmt.Fprintln(cmd.OutOrStdout(), renderFlatRecord(e))
				}
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderForest(forest, nil))
			if cycle, cyclic := hierarchy.FindCycle(records); cyclic {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(fmt.Sprintf("records contain a reporting loop through %v", cycle)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "print the canonical flat record order instead of a tree")
	return cmd
}
