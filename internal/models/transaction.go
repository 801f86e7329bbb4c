package models

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind names the contract write a PendingTransaction represents.
type TxKind string

const (
	TxApprove TxKind = "approve"
	TxBuy     TxKind = "buy"
	TxBurn    TxKind = "burnBeer"
)

// TxState is the lifecycle state of an in-flight chain write.
type TxState string

const (
	TxSubmitting TxState = "submitting"
	TxSubmitted  TxState = "submitted"
	TxConfirmed  TxState = "confirmed"
	TxReverted   TxState = "reverted"
	TxFailed     TxState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TxState) Terminal() bool {
	return s == TxConfirmed || s == TxReverted || s == TxFailed
}

// PendingTransaction tracks one chain write from signing to finality.
type PendingTransaction struct {
	ID          string
	Kind        TxKind
	ChainID     uint64
	Contract    common.Address
	From        common.Address
	Hash        common.Hash // zero until submitted
	State       TxState
	Error       string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Validate checks transaction field constraints.
func (t *PendingTransaction) Validate() error {
	if t.ID == "" {
		return errors.New("transaction ID must not be empty")
	}
	if t.Kind == "" {
		return errors.New("transaction kind must not be empty")
	}
	if t.ChainID == 0 {
		return errors.New("chain id must be set")
	}
	switch t.State {
	case TxSubmitting, TxSubmitted, TxConfirmed, TxReverted, TxFailed:
	default:
		return errors.New("unknown transaction state")
	}
	if t.State != TxSubmitting && t.State != TxFailed && t.Hash == (common.Hash{}) {
		return errors.New("submitted transaction must carry a hash")
	}
	if t.UpdatedAt.Before(t.SubmittedAt) {
		return errors.New("updated at must be >= submitted at")
	}
	return nil
}
