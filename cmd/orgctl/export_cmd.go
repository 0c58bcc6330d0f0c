package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		title  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the org chart as HTML or PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireValue("output", output); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			chart, err := client.ExportChart(cmd.Context(), format, title)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(chart.Data)
				return err
			}
			if err := os.WriteFile(output, chart.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render(fmt.Sprintf("wrote %d bytes to %s", len(chart.Data), output)))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "html or pdf")
	cmd.Flags().StringVar(&title, "title", "", "chart heading")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, or - for stdout")
	return cmd
}
