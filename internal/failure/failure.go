// Package failure defines the tagged error kinds surfaced by the purchase,
// checkout and wristband pipelines so callers can branch on what went wrong.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindIdentityUnresolved blocks submission before any write.
	KindIdentityUnresolved
	// KindWristbandScan covers tag absence, protocol errors and cancellation.
	KindWristbandScan
	// KindTransactionRejected means the signer declined.
	KindTransactionRejected
	// KindTransactionReverted means the transaction failed on chain.
	KindTransactionReverted
	// KindConfirmationTimeout means the receipt wait exceeded its bound.
	KindConfirmationTimeout
	// KindNetwork is an RPC transport failure while submitting or waiting.
	KindNetwork
	// KindReadFailure is a balance, name or indexer query failure.
	KindReadFailure
)

func (k Kind) String() string {
	switch k {
	case KindIdentityUnresolved:
		return "identity_unresolved"
	case KindWristbandScan:
		return "wristband_scan"
	case KindTransactionRejected:
		return "transaction_rejected"
	case KindTransactionReverted:
		return "transaction_reverted"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	case KindNetwork:
		return "network"
	case KindReadFailure:
		return "read_failure"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind and op. A nil err still yields a non-nil failure.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindUnknown when there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
