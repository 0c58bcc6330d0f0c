package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the employee directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("No matches for %q.", resp.Query)))
				return nil
			}
			for _, r := range resp.Results {
				line := fmt.Sprintf("%s  %s  %s", idStyle.Render(fmt.Sprintf("#%d", r.ID)), nameStyle.Render(r.Name), titleStyle.Render(r.Title))
				if r.ManagerName != "" {
					line += mutedStyle.Render("  reports to " + r.ManagerName)
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d of %d via %s", len(resp.Results), resp.Total, resp.Backend)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	return cmd
}
