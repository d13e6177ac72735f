package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/HammerLabML/atmn/internal/api"
	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/sim"
	"github.com/HammerLabML/atmn/internal/store"
)

const defaultServeAddr = ":8080"

// resolveServeAddr returns the configured listen address, or the default
// when the settings leave it empty.
func resolveServeAddr(configured string) string {
	if configured == "" {
		return defaultServeAddr
	}
	return configured
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and generation metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsPath, _ := cmd.Flags().GetString("settings")
			settings, err := config.LoadSettings(settingsPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.ServeAddr, _ = cmd.Flags().GetString("addr")
			}
			settings.ServeAddr = resolveServeAddr(settings.ServeAddr)

			logger := config.NewLogger(os.Stdout, config.ParseLogLevel(settings.LogLevel))

			st, err := store.NewSQLiteStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := api.NewServer(settings.ServeAddr, st, sim.DefaultRegistry(), logger)
			return srv.Run()
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides the settings file)")

	return cmd
}
