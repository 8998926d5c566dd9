package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"coachcal/internal/config"
)

// rootOptions holds the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "coachcal",
		Short:        "Plan training sessions on a per-client calendar.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			if o.verbose {
				cfg.Log.Level = "debug"
			}
			logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			o.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv("COACHCAL_CONFIG"), "YAML config file")
	cmd.PersistentFlags().BoolVar(&o.verbose, "verbose", false, "log at debug level")

	cmd.AddCommand(
		newServeCmd(o),
		newMigrateCmd(o),
		newBoardCmd(o),
		newMoveCmd(o),
		newCopyCmd(o),
		newRepeatCmd(o),
	)
	return cmd
}
