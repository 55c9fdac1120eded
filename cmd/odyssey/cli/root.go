package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
)

// NewRootCommand assembles the odyssey command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Odyssey stock ledger and reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand(), newJobsCommand())
	return root
}

// Execute runs the command named by args. With no arguments it serves HTTP.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	if len(args) == 0 {
		args = []string{"serve"}
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}
