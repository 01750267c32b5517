// Package main provides indentctl, an operator CLI over the configured
// procurement store: inspect indents and purchase orders, read the
// dashboard and run vendor grouping without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/config"
	"github.com/garyjia/indent-flow/internal/container"
	"github.com/garyjia/indent-flow/pkg/utils"
)

// Global flags
var (
	configPath string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "indentctl",
	Short: "Operate the indent procurement workflow from the command line",
	Long: `indentctl works directly against the configured store.

Examples:
  indentctl stages                         # List the 21 workflow stages
  indentctl show IND-0001                  # Show an indent with its step history
  indentctl dashboard --role hod           # Open work for one role
  indentctl group --dry-run                # Preview vendor batches
  indentctl group --as buyer@plant.example # Create purchase orders`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log container activity")

	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(groupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		stop()
		os.Exit(1)
	}
}

// withContainer starts a container from the loaded configuration, runs fn and closes it.
// The background grouping worker is disabled so commands stay one-shot.
func withContainer(ctx context.Context, fn func(c *container.Container) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Workflow.GroupingInterval = 0

	logger := zap.NewNop()
	if verbose {
		logger, err = utils.NewDevelopmentLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
