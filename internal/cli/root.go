// Package cli implements the signalwatch command line.
package cli

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"signalwatch/internal/config"
)

// Execute runs the root command.
func Execute() error {
	return NewRoot().Execute()
}

type rootOptions struct {
	configPath string
}

// NewRoot builds the command tree.
func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "signalwatch",
		Short:        "Traffic signal camera monitor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	root.AddCommand(
		ServeCmd(opts),
		CycleCmd(opts),
		HistoryCmd(opts),
		ExportCmd(opts),
		ConfigCmd(opts),
	)
	return root
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

func loadApp(ctx context.Context, opts *rootOptions) (*App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg, newLogger())
}
