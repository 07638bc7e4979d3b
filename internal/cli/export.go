package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signalwatch/internal/observations/export"
)

// ExportCmd writes the observation history for a time range to a file.
func ExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
		from   string
		to     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export observation history as csv, xlsx or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now().UTC()
			start := end.Add(-24 * time.Hour)
			var err error
			if from != "" {
				if start, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from must be RFC3339: %w", err)
				}
			}
			if to != "" {
				if end, err = time.Parse(time.RFC3339, to); err != nil {
					return fmt.Errorf("--to must be RFC3339: %w", err)
				}
			}

			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Log.Range(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			data, err := export.Build(format, export.Report{
				Signal:       app.Config.SignalName,
				From:         start,
				To:           end,
				GeneratedAt:  time.Now().UTC(),
				Observations: list,
			})
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("observations.%s", format)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d observations to %s\n", len(list), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatCSV, "export format: csv, xlsx or pdf")
	cmd.Flags().StringVar(&out, "out", "", "output file (default observations.<format>)")
	cmd.Flags().StringVar(&from, "from", "", "range start, RFC3339 (default 24h ago)")
	cmd.Flags().StringVar(&to, "to", "", "range end, RFC3339 (default now)")
	return cmd
}
