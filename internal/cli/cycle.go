package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// CycleCmd runs one capture/classify/record/dispatch cycle and prints the observation.
func CycleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single monitor cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			obs, err := app.Monitor.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			// let an alert triggered by this cycle finish before exit
			app.Dispatcher.Wait()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(obs)
		},
	}
}
