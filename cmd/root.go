package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gcp-support/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "research-gcp",
	Short: "Ground control point aggregation for drone imagery",
	Long:  "Searches USGS and NOAA sources for ground control points in a survey area, scores their spatial distribution, and exports them for MetaShape and ArcGIS.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
