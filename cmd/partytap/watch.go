package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
	"github.com/rewired-gh/partytap/internal/storage"
	"github.com/rewired-gh/partytap/internal/telegram"
	"github.com/rewired-gh/partytap/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the purchase price feed and notify on new purchases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := storage.New(cfg.Storage.MaxTransactions, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		reportPending(store)

		w := watch.New(newFeed(cfg))

		var telegramClient *telegram.Client
		if cfg.Telegram.Enabled {
			telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
			if err != nil {
				logger.Fatal("Failed to initialize Telegram client: %v", err)
			}
			logger.Info("Telegram client initialized successfully")
			telegramClient.ListenForCommands(ctx, func(ctx context.Context) (*models.ChartSeries, error) {
				if s := w.Latest(); s != nil {
					return s, nil
				}
				return newFeed(cfg).Fetch(ctx)
			})
		} else {
			logger.Debug("Telegram notifications disabled")
		}

		logger.Info("Starting price watcher (interval: %v, indexer: %s)", cfg.Watch.PollInterval, cfg.Indexer.URL)

		ticker := time.NewTicker(cfg.Watch.PollInterval)
		defer ticker.Stop()

		consecutiveFailures := 0
		first := true

		handleCycleResult := func(err error) {
			if err != nil {
				consecutiveFailures++
				logger.Error("Watch cycle failed: %v", err)
				if consecutiveFailures == 1 && telegramClient != nil {
					if sendErr := telegramClient.SendError(err); sendErr != nil {
						logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
					}
				}
			} else {
				if consecutiveFailures > 0 && telegramClient != nil {
					if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
						logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
					}
				}
				consecutiveFailures = 0
			}
		}

		runCycle := func() error {
			u, err := w.Poll(ctx)
			if err != nil {
				return err
			}
			// The first poll only establishes the watermark.
			if first {
				first = false
				logger.Info("Loaded %d existing purchase(s)", len(u.New))
				return nil
			}
			if len(u.New) > 0 && telegramClient != nil {
				if err := telegramClient.SendNewPurchases(u.New); err != nil {
					logger.Error("Failed to send Telegram notification: %v", err)
				}
			}
			return nil
		}

		logger.Debug("Running initial watch cycle")
		handleCycleResult(runCycle())

		for {
			select {
			case <-ctx.Done():
				logger.Info("Shutdown signal received, watcher stopped")
				return nil

			case <-ticker.C:
				logger.Debug("Starting scheduled watch cycle")
				handleCycleResult(runCycle())
				if err := store.Rotate(); err != nil {
					logger.Warn("Failed to rotate journal: %v", err)
				}
			}
		}
	},
}

// reportPending logs journaled writes that never reached a final state.
func reportPending(store *storage.Storage) {
	pending, err := store.Pending()
	if err != nil {
		logger.Warn("Failed to read pending transactions: %v", err)
		return
	}
	for _, pt := range pending {
		logger.Warn("Transaction %s (%s, %s) on chain %d never finished; hash %s",
			pt.ID, pt.Kind, pt.State, pt.ChainID, pt.Hash.Hex())
	}
}
