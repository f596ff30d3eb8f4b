package cli

import (
	"fmt"

	"dataroom-service/internal/app"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply catalog schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), env.Config)
		},
	}
}

func NewSweepCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail imports stuck in processing once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app.Sweep(cmd.Context(), env.Config)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d stale imports failed\n", n)
			return nil
		},
	}
}
