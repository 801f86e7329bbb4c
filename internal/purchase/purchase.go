// Package purchase runs the two-phase on-chain beer purchase: an allowance
// grant on the stablecoin followed by the buy call, then a refresh of every
// read value the purchase changed.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
)

var (
	// ErrIdentityRequired is the cause of the identity gate failure.
	ErrIdentityRequired = errors.New("primary display name must be resolved before buying")
	// ErrInProgress is returned when a purchase is already running.
	ErrInProgress = errors.New("purchase already in progress")
)

// Balances reads token balances.
type Balances interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// SeriesFetcher rebuilds the chart series from the full event list.
type SeriesFetcher interface {
	Fetch(ctx context.Context) (*models.ChartSeries, error)
}

// Reconciled holds the read values refreshed after a purchase.
// A field is nil when its refresh failed.
type Reconciled struct {
	BeerBalance *big.Int
	USDCBalance *big.Int
	Series      *models.ChartSeries
}

// Orchestrator runs purchases. It refuses to start a purchase while another
// one is in progress.
type Orchestrator struct {
	submitter  *chain.Submitter
	balances   Balances
	series     SeriesFetcher
	inProgress atomic.Bool
}

// New creates an Orchestrator.
func New(submitter *chain.Submitter, balances Balances, series SeriesFetcher) *Orchestrator {
	return &Orchestrator{submitter: submitter, balances: balances, series: series}
}

// InProgress reports whether a purchase is running.
func (o *Orchestrator) InProgress() bool {
	return o.inProgress.Load()
}

// Purchase approves sess.Allowance for the party contract, buys, and then
// refreshes the beer balance, the chart series and the stablecoin balance.
//
// Each step waits for its confirmation before the next one starts and any
// failure aborts the rest. A granted allowance is not revoked when the buy
// fails. Transaction failures carry their failure kind; a purchase that
// confirmed but could not refresh everything returns the partial Reconciled
// together with a KindReadFailure error.
func (o *Orchestrator) Purchase(ctx context.Context, sess *models.Session) (*Reconciled, error) {
	if sess.DisplayName == "" {
		logger.Info("Purchase blocked for %s: display name unresolved", sess.Account.Hex())
		return nil, failure.New(failure.KindIdentityUnresolved, "purchase", ErrIdentityRequired)
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	if !o.inProgress.CompareAndSwap(false, true) {
		logger.Warn("Purchase for %s rejected: another purchase is in progress", sess.Account.Hex())
		return nil, ErrInProgress
	}
	defer o.inProgress.Store(false)

	// A started sequence is not cancellable; receipt waits carry their own timeout.
	ctx = context.WithoutCancel(ctx)

	logger.Info("Starting purchase for %s (%s) at party %s", sess.DisplayName, sess.Account.Hex(), sess.Party.Hex())

	approve := chain.Call{
		ABI:     chain.ERC20ABI,
		Address: sess.USDC,
		Method:  "approve",
		Args:    []any{sess.Party, new(big.Int).Set(sess.Allowance)},
		ChainID: sess.ChainID,
	}
	if _, err := o.submitter.Execute(ctx, models.TxApprove, sess.Account, approve); err != nil {
		logger.Error("Purchase aborted at approve: %v", err)
		return nil, fmt.Errorf("approve: %w", err)
	}

	buy := chain.Call{
		ABI:     chain.PartyABI,
		Address: sess.Party,
		Method:  "buy",
		ChainID: sess.ChainID,
	}
	if _, err := o.submitter.Execute(ctx, models.TxBuy, sess.Account, buy); err != nil {
		logger.Error("Purchase aborted at buy, allowance stays granted: %v", err)
		return nil, fmt.Errorf("buy: %w", err)
	}

	rec, err := o.Reconcile(ctx, sess)
	if err != nil {
		logger.Warn("Purchase confirmed but refresh incomplete: %v", err)
		return rec, err
	}
	logger.Info("Purchase complete for %s", sess.Account.Hex())
	return rec, nil
}

// Reconcile refetches the beer balance, the chart series and the stablecoin
// balance. All three are attempted even when one fails.
func (o *Orchestrator) Reconcile(ctx context.Context, sess *models.Session) (*Reconciled, error) {
	rec := &Reconciled{}
	var errs []error

	beer, err := o.balances.TokenBalance(ctx, sess.Beer, sess.Account)
	if err != nil {
		errs = append(errs, fmt.Errorf("beer balance: %w", err))
	} else {
		rec.BeerBalance = beer
	}

	s, err := o.series.Fetch(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("chart series: %w", err))
	} else {
		rec.Series = s
	}

	usdc, err := o.balances.TokenBalance(ctx, sess.USDC, sess.Account)
	if err != nil {
		errs = append(errs, fmt.Errorf("usdc balance: %w", err))
	} else {
		rec.USDCBalance = usdc
	}

	if len(errs) > 0 {
		return rec, failure.New(failure.KindReadFailure, "reconcile", errors.Join(errs...))
	}
	return rec, nil
}
