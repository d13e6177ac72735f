package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HammerLabML/atmn/internal/api"
	"github.com/HammerLabML/atmn/internal/config"
	"github.com/HammerLabML/atmn/internal/engine"
	"github.com/HammerLabML/atmn/internal/model"
	"github.com/HammerLabML/atmn/internal/sim"
	"github.com/HammerLabML/atmn/internal/store"
)

// defaultBudgetMB bounds simulation memory when neither the settings file
// nor the -m flag specify a budget.
const defaultBudgetMB = 4096

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <config.xml> <collection-dir>",
		Short: "Simulate a scenario collection and persist its measurements",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsPath, _ := cmd.Flags().GetString("settings")
			settings, err := config.LoadSettings(settingsPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("threads") {
				settings.Threads, _ = cmd.Flags().GetInt("threads")
			}
			if cmd.Flags().Changed("max-memory") {
				settings.MaxMemoryMB, _ = cmd.Flags().GetInt64("max-memory")
			}
			if cmd.Flags().Changed("dtype") {
				settings.Precision, _ = cmd.Flags().GetString("dtype")
			}
			force, _ := cmd.Flags().GetBool("force")
			selection, _ := cmd.Flags().GetStringArray("select")
			serve, _ := cmd.Flags().GetBool("serve")

			logger := config.NewLogger(os.Stderr, config.ParseLogLevel(settings.LogLevel))

			precision, ok := model.ParsePrecision(settings.Precision)
			if !ok {
				logger.Warn("unknown precision, falling back to float16", "precision", settings.Precision)
			}

			col, err := config.ParseCollection(args[0])
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(settings.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			registry := sim.DefaultRegistry()
			eng := engine.NewEngine(st, registry, logger, settings.Engine, precision)

			if serve {
				srv := api.NewServer(resolveServeAddr(settings.ServeAddr), st, registry, logger)
				go func() {
					if err := srv.Run(); err != nil {
						logger.Error("monitoring server", "error", err)
					}
				}()
			}

			budgetMB := settings.MaxMemoryMB
			if budgetMB <= 0 {
				budgetMB = defaultBudgetMB
			}

			run, err := eng.Run(cmd.Context(), col, engine.PlanOptions{
				ConfigPath: args[0],
				OutputPath: args[1],
				BudgetKB:   budgetMB * 1024,
				Workers:    settings.Threads,
				Force:      force,
				Selection:  config.Selection(selection),
			})
			if err != nil {
				return err
			}

			stats, err := st.GetRunStats(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d jobs\n", run.ID, stats.Total)
			for _, status := range []string{
				model.StatusDone, model.StatusSkipped, model.StatusFailed,
			} {
				if n := stats.CountByStatus[status]; n > 0 {
					fmt.Fprintf(out, "  %s: %d\n", status, n)
				}
			}
			if stats.CountByStatus[model.StatusFailed] > 0 {
				return fmt.Errorf("%d job(s) failed", stats.CountByStatus[model.StatusFailed])
			}
			return nil
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Regenerate even when measurements already exist")
	cmd.Flags().StringArrayP("select", "s", nil, `Restrict generation to "Scenario.LeakConfig" pairs ("Scenario.*" for all)`)
	cmd.Flags().IntP("threads", "t", 1, "Number of parallel simulation workers")
	cmd.Flags().Int64P("max-memory", "m", 0, "Memory budget in MB (0 uses the settings file or the default)")
	cmd.Flags().StringP("dtype", "d", "", "Measurement precision: 16, 32, 64, or csv")
	cmd.Flags().Bool("serve", false, "Expose run history and metrics over HTTP while generating")

	return cmd
}
