package cli

import (
	"fmt"

	"dataroom-service/internal/config"
	"dataroom-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type VersionInfo struct {
	Version string
	Commit  string
}

// Env is filled by the root command before any subcommand runs.
type Env struct {
	Config *config.Config
}

func NewRootCommand(info VersionInfo) (*cobra.Command, *Env) {
	var (
		path     string
		logLevel string
	)
	env := &Env{}

	cmd := &cobra.Command{
		Use:           "dataroom",
		Short:         "Data room file service",
		Long:          "Imports files from Google Drive into a checksummed catalog and serves them back with access auditing.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			for _, f := range []string{".env", ".env.local"} {
				// missing files are fine
				_ = godotenv.Load(f)
			}

			cfg, err := config.New(path)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			ctx, err := logger.New(cmd.Context(), cfg.Log)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			env.Config = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.GetLogger(cmd.Context()).Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "config file (.env, .yaml or .json); environment only when empty")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	return cmd, env
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cmd.Root().Version)
		},
	}
}
