package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "atmn",
		Short: "Labeled leakage dataset generator for water distribution networks",
		Long: `atmn generates labeled time-series datasets from water distribution
network models. A scenario collection config describes networks, leak
configurations, sensor placements, and sensor faults; atmn simulates every
(scenario, leak config) pair under a memory budget and persists the
measurements together with the configs that produced them.`,
	}

	rootCmd.PersistentFlags().String("settings", "atmn.yaml", "Path to the tool settings file")

	rootCmd.AddCommand(
		newGenerateCmd(),
		newListCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
