// Command costmap builds occupancy grids from Livox point batches and pose
// samples and publishes them over gRPC and HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/costmap/internal/config"
	"github.com/banshee-data/costmap/internal/monitoring"
	"github.com/banshee-data/costmap/internal/version"
)

var (
	// Global flags
	configPath string
	logLevel   string
	devLogs    bool

	// cfg is loaded in PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "costmap",
	Short: "Occupancy grid publisher for Livox point clouds",
	Long: `costmap integrates Livox point batches and navigation poses into a
log-odds occupancy map, publishes global and local grids, and saves the map
as a PGM image on request.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := monitoring.NewLogger(logLevel, devLogs)
		if err != nil {
			return err
		}
		monitoring.SetLogger(logger)

		if configPath == "" {
			cfg = config.EmptyConfig()
			return cfg.Validate()
		}
		cfg, err = config.LoadConfig(configPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = monitoring.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "costmap", version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file (see "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "Human-readable development logging")

	rootCmd.AddCommand(serveCmd, replayCmd, exportSnapshotCmd, watchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
