package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/partytap/internal/config"
	"github.com/rewired-gh/partytap/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "partytap",
	Short: "Party beer sales on-chain",
	Long: `partytap buys beer tokens from a party contract, checks out beers at the
bar by wristband tap, and follows the purchase price feed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		logger.Debug("Configuration loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")

	chartCmd.Flags().Bool("json", false, "Print the series and window as JSON")
	checkoutCmd.Flags().Int64("quantity", 1, "Number of beers to burn")
	journalCmd.Flags().Int("limit", 20, "Number of transactions to list")

	rootCmd.AddCommand(partyCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(journalCmd)
}

// execute runs the CLI and flushes the logger on every exit path, including
// the failing ones where cobra skips PersistentPostRun.
func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Sync()
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:]); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
