package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rewired-gh/partytap/internal/failure"
)

// EIP-1193 user rejection and the geth code for execution reverted.
const (
	codeUserRejected      = 4001
	codeExecutionReverted = 3
)

// ClassifySendError maps an error from signing or sending a transaction to a
// failure kind.
func ClassifySendError(err error) failure.Kind {
	if errors.Is(err, bind.ErrNotAuthorized) {
		return failure.KindTransactionRejected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.KindConfirmationTimeout
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return failure.KindTransactionRejected
		case codeExecutionReverted:
			return failure.KindTransactionReverted
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"):
		return failure.KindTransactionReverted
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "request denied"):
		return failure.KindTransactionRejected
	}
	return failure.KindNetwork
}

func classifyWaitError(err error) failure.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.KindConfirmationTimeout
	}
	return failure.KindNetwork
}
