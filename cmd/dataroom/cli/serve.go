package cli

import (
	"dataroom-service/internal/app"

	"github.com/spf13/cobra"
)

func NewServeCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the stale import sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), env.Config)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}
