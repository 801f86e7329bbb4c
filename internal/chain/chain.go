// Package chain is the blockchain RPC layer: contract reads, signed writes
// and receipt waits, plus a Submitter that runs one write to finality.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call addresses one contract function on one chain.
type Call struct {
	ABI     *abi.ABI
	Address common.Address
	Method  string
	Args    []any
	ChainID uint64
}

// Reader executes view calls.
type Reader interface {
	ReadContract(ctx context.Context, call Call) ([]any, error)
}

// Writer signs and submits a transaction and returns its hash.
type Writer interface {
	WriteContract(ctx context.Context, call Call) (common.Hash, error)
}

// Signer is implemented by writers that sign with a fixed account.
type Signer interface {
	Address() common.Address
}

// ErrSenderMismatch is returned when a write is requested for an account the
// writer does not sign with.
var ErrSenderMismatch = errors.New("sender does not match signing account")

// ReceiptWaiter blocks until hash has the requested number of confirmations.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error)
}
