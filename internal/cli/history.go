package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	observations "signalwatch/internal/observations/domain"
)

// HistoryCmd prints the most recent observations.
func HistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent observations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := observations.ValidateLimit(limit); err != nil {
				return err
			}
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Log.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("loading history: %w", err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No observations recorded")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tSTATE\tCONFIDENCE\tDETAIL")
			for _, obs := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\n",
					obs.SequenceID, obs.Timestamp.Format(time.RFC3339), obs.State, obs.Confidence, obs.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of observations to show")
	return cmd
}
