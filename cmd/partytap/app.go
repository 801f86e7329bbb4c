package main

import (
	"context"
	"fmt"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/config"
	"github.com/rewired-gh/partytap/internal/identity"
	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
	"github.com/rewired-gh/partytap/internal/party"
	"github.com/rewired-gh/partytap/internal/series"
	"github.com/rewired-gh/partytap/internal/storage"
	"github.com/rewired-gh/partytap/internal/telegram"
)

// app holds the clients shared by the subcommands.
type app struct {
	cfg      *config.Config
	chain    *chain.Client
	party    *party.Reader
	resolver *identity.Resolver
	primary  *identity.Primary
	feed     *series.Feed
	store    *storage.Storage
}

// newApp dials both chains and opens the journal.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := chain.Dial(ctx, map[uint64]string{
		cfg.Chain.ChainID: cfg.Chain.RPCURL,
		cfg.Names.ChainID: cfg.Names.RPCURL,
	}, chain.Options{
		PrivateKey:     cfg.Wallet.PrivateKey,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		PollInterval:   cfg.Chain.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage.MaxTransactions, cfg.Storage.DBPath)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	resolver := identity.NewResolver(client, cfg.RegistryAddress(), cfg.Names.ChainID)
	return &app{
		cfg:      cfg,
		chain:    client,
		party:    party.NewReader(client, cfg.Chain.ChainID),
		resolver: resolver,
		primary:  identity.NewPrimary(resolver, client.Address()),
		feed:     newFeed(cfg),
		store:    store,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
	a.chain.Close()
}

func (a *app) submitter() *chain.Submitter {
	return chain.NewSubmitter(a.chain, a.chain, a.store, a.cfg.Chain.Confirmations)
}

// session reads the party configuration and resolves the primary name of
// the signing account.
func (a *app) session(ctx context.Context) (*models.Session, *models.PartyInfo, error) {
	if !a.chain.CanSign() {
		return nil, nil, fmt.Errorf("wallet.private_key is required for this command")
	}
	info, err := a.party.Info(ctx, a.cfg.PartyAddress())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read party: %w", err)
	}
	if _, err := a.primary.Refetch(ctx); err != nil {
		logger.Warn("Failed to resolve name of %s: %v", a.chain.Address().Hex(), err)
	}
	return &models.Session{
		Account:     a.chain.Address(),
		DisplayName: a.primary.Name(),
		Party:       info.Address,
		USDC:        info.USDC,
		Beer:        info.Beer,
		Allowance:   a.cfg.AllowanceAmount(),
		ChainID:     a.cfg.Chain.ChainID,
	}, info, nil
}

// notifier returns the Telegram client, nil when notifications are disabled.
func (a *app) notifier() *telegram.Client {
	if !a.cfg.Telegram.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil
	}
	tg, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase)
	if err != nil {
		logger.Warn("Failed to initialize Telegram client: %v", err)
		return nil
	}
	logger.Info("Telegram client initialized successfully")
	return tg
}
