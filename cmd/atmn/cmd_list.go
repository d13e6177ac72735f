package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HammerLabML/atmn/internal/collection"
	"github.com/HammerLabML/atmn/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection-dir>",
		Short: "List the scenarios and configs of a generated collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsPath, _ := cmd.Flags().GetString("settings")
			settings, err := config.LoadSettings(settingsPath)
			if err != nil {
				return err
			}
			logger := config.NewLogger(os.Stderr, config.ParseLogLevel(settings.LogLevel))

			col, err := collection.Open(args[0], logger)
			if err != nil {
				return err
			}
			scenarios, err := col.Scenarios()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range scenarios {
				cfgs, err := col.Configs(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, name)
				fmt.Fprintf(out, "  leak configs:        %s\n", joinOrDash(cfgs.LeakConfigs))
				fmt.Fprintf(out, "  sensor configs:      %s\n", joinOrDash(cfgs.SensorConfigs))
				fmt.Fprintf(out, "  sensorfault configs: %s\n", joinOrDash(cfgs.SensorfaultConfigs))
			}
			return nil
		},
	}
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
