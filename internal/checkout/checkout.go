// Package checkout burns beer from a wristband holder's balance on behalf of
// the party operator.
package checkout

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
	// ErrNoHolder means no wristband has been scanned; no transaction is issued.
	ErrNoHolder = errors.New("no holder scanned")
	// ErrInvalidQuantity means the quantity is not a positive integer; no transaction is issued.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrInProgress is returned when a burn is already running.
	ErrInProgress = errors.New("checkout already in progress")
)

// Balances reads token balances.
type Balances interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Result describes a confirmed burn.
type Result struct {
	Holder   models.Holder
	Quantity int64
	TxHash   common.Hash
	// BeerBalance is the holder's balance refetched after confirmation,
	// nil when the refresh failed.
	BeerBalance *big.Int
}

// Orchestrator issues operator-signed burns.
type Orchestrator struct {
	submitter  *chain.Submitter
	balances   Balances
	inProgress atomic.Bool
}

// New creates an Orchestrator.
func New(submitter *chain.Submitter, balances Balances) *Orchestrator {
	return &Orchestrator{submitter: submitter, balances: balances}
}

// InProgress reports whether a burn is running.
func (o *Orchestrator) InProgress() bool {
	return o.inProgress.Load()
}

// Checkout burns quantity beers from holder's balance at sess.Party, signed by
// the operator account sess.Account, waits for confirmation and refetches the
// holder's beer balance.
// A nil holder or a non-positive quantity is a no-op reported through
// ErrNoHolder or ErrInvalidQuantity. A confirmed burn always returns a Result;
// when only the refresh failed it comes with a KindReadFailure error.
func (o *Orchestrator) Checkout(ctx context.Context, sess *models.Session, holder *models.Holder, quantity int64) (*Result, error) {
	if holder == nil || holder.Address == (common.Address{}) {
		return nil, ErrNoHolder
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !o.inProgress.CompareAndSwap(false, true) {
		logger.Warn("Checkout for %s rejected: another checkout is in progress", holder.Label())
		return nil, ErrInProgress
	}
	defer o.inProgress.Store(false)

	// A submitted burn is not cancellable; the receipt wait carries its own timeout.
	ctx = context.WithoutCancel(ctx)

	logger.Info("Checking out %d beer(s) for %s", quantity, holder.Label())
	burn := chain.Call{
		ABI:     chain.PartyABI,
		Address: sess.Party,
		Method:  "burnBeer",
		Args:    []any{holder.Address, big.NewInt(quantity)},
		ChainID: sess.ChainID,
	}
	receipt, err := o.submitter.Execute(ctx, models.TxBurn, sess.Account, burn)
	if err != nil {
		logger.Error("Checkout for %s failed: %v", holder.Label(), err)
		return nil, fmt.Errorf("burn: %w", err)
	}
	logger.Info("Checked out %d beer(s) for %s in %s", quantity, holder.Label(), receipt.TxHash.Hex())

	res := &Result{Holder: *holder, Quantity: quantity, TxHash: receipt.TxHash}
	beer, err := o.balances.TokenBalance(ctx, sess.Beer, holder.Address)
	if err != nil {
		logger.Warn("Checkout confirmed but beer balance refresh failed: %v", err)
		if failure.KindOf(err) == failure.KindUnknown {
			err = failure.New(failure.KindReadFailure, "beer balance", err)
		}
		return res, fmt.Errorf("refresh: %w", err)
	}
	res.BeerBalance = beer
	return res, nil
}
