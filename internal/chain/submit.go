package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
)

// Journal records the lifecycle of every submitted write.
type Journal interface {
	Record(tx *models.PendingTransaction) error
	Update(tx *models.PendingTransaction) error
}

type nopJournal struct{}

func (nopJournal) Record(*models.PendingTransaction) error { return nil }
func (nopJournal) Update(*models.PendingTransaction) error { return nil }

// Submitter issues one write and blocks until it is final.
type Submitter struct {
	writer        Writer
	waiter        ReceiptWaiter
	journal       Journal
	confirmations uint64
}

// NewSubmitter creates a Submitter. A nil journal disables journaling.
func NewSubmitter(w Writer, r ReceiptWaiter, j Journal, confirmations uint64) *Submitter {
	if j == nil {
		j = nopJournal{}
	}
	if confirmations == 0 {
		confirmations = 1
	}
	return &Submitter{writer: w, waiter: r, journal: j, confirmations: confirmations}
}

// Execute submits call signed by from and waits for its confirmations.
// The returned error is always a *failure.Error.
// A writer implementing Signer must sign with from; otherwise nothing is sent.
func (s *Submitter) Execute(ctx context.Context, kind models.TxKind, from common.Address, call Call) (*types.Receipt, error) {
	if signer, ok := s.writer.(Signer); ok && signer.Address() != from {
		err := failure.New(failure.KindTransactionRejected, string(kind),
			fmt.Errorf("%w: want %s, signer %s", ErrSenderMismatch, from.Hex(), signer.Address().Hex()))
		logger.Error("Refusing to submit %s: %v", kind, err)
		return nil, err
	}
	now := time.Now()
	pt := &models.PendingTransaction{
		ID:          uuid.New().String(),
		Kind:        kind,
		ChainID:     call.ChainID,
		Contract:    call.Address,
		From:        from,
		State:       models.TxSubmitting,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.journal.Record(pt); err != nil {
		logger.Warn("Failed to journal %s transaction %s: %v", kind, pt.ID, err)
	}

	hash, err := s.writer.WriteContract(ctx, call)
	if err != nil {
		err = tag(err, ClassifySendError(err), string(kind))
		s.transition(pt, models.TxFailed, err)
		logger.Error("Failed to submit %s on chain %d: %v", kind, call.ChainID, err)
		return nil, err
	}
	pt.Hash = hash
	s.transition(pt, models.TxSubmitted, nil)
	logger.Info("Submitted %s transaction %s on chain %d", kind, hash.Hex(), call.ChainID)

	receipt, err := s.waiter.WaitForReceipt(ctx, call.ChainID, hash, s.confirmations)
	if err == nil && receipt != nil && receipt.Status == types.ReceiptStatusFailed {
		err = failure.New(failure.KindTransactionReverted, string(kind), errors.New("receipt status failed"))
	}
	if err != nil {
		err = tag(err, classifyWaitError(err), string(kind))
		state := models.TxFailed
		if failure.Is(err, failure.KindTransactionReverted) {
			state = models.TxReverted
		}
		s.transition(pt, state, err)
		logger.Error("Transaction %s (%s) did not confirm: %v", hash.Hex(), kind, err)
		return nil, err
	}

	s.transition(pt, models.TxConfirmed, nil)
	logger.Info("Confirmed %s transaction %s", kind, hash.Hex())
	return receipt, nil
}

func (s *Submitter) transition(pt *models.PendingTransaction, state models.TxState, cause error) {
	pt.State = state
	pt.UpdatedAt = time.Now()
	if cause != nil {
		pt.Error = cause.Error()
	}
	if err := s.journal.Update(pt); err != nil {
		logger.Warn("Failed to update journal for transaction %s: %v", pt.ID, err)
	}
}

// tag attaches fallback to errors that do not already carry a kind.
func tag(err error, fallback failure.Kind, op string) error {
	if failure.KindOf(err) != failure.KindUnknown {
		return err
	}
	return failure.New(fallback, op, err)
}
