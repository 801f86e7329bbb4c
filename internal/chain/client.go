package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/logger"
)

// Options configures a Client.
type Options struct {
	// PrivateKey is the hex-encoded signing key. Empty means read-only.
	PrivateKey     string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Client talks to one JSON-RPC endpoint per chain id.
type Client struct {
	backends       map[uint64]*ethclient.Client
	key            *ecdsa.PrivateKey
	from           common.Address
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

// Dial connects to every endpoint and checks that each one serves the chain
// id it is registered under.
func Dial(ctx context.Context, endpoints map[uint64]string, opts Options) (*Client, error) {
	c := &Client{
		backends:       make(map[uint64]*ethclient.Client, len(endpoints)),
		receiptTimeout: opts.ReceiptTimeout,
		pollInterval:   opts.PollInterval,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	for chainID, url := range endpoints {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
		}
		c.backends[chainID] = ec

		served, err := ec.ChainID(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to query chain id of %d endpoint: %w", chainID, err)
		}
		if served.Uint64() != chainID {
			c.Close()
			return nil, fmt.Errorf("endpoint for chain %d serves chain %d", chainID, served.Uint64())
		}
		logger.Debug("Connected to chain %d", chainID)
	}
	return c, nil
}

// Close releases every RPC connection.
func (c *Client) Close() {
	for _, b := range c.backends {
		b.Close()
	}
}

// Address returns the signing account, or the zero address when read-only.
func (c *Client) Address() common.Address {
	return c.from
}

// CanSign reports whether a signing key is configured.
func (c *Client) CanSign() bool {
	return c.key != nil
}

func (c *Client) backend(chainID uint64) (*ethclient.Client, error) {
	b, ok := c.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for chain %d", chainID)
	}
	return b, nil
}

// ReadContract executes a view call and returns the unpacked outputs.
func (c *Client) ReadContract(ctx context.Context, call Call) ([]any, error) {
	b, err := c.backend(call.ChainID)
	if err != nil {
		return nil, failure.New(failure.KindReadFailure, call.Method, err)
	}
	contract := bind.NewBoundContract(call.Address, *call.ABI, b, b, b)

	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, call.Method, call.Args...); err != nil {
		return nil, failure.New(failure.KindReadFailure, call.Method, err)
	}
	return out, nil
}

// WriteContract signs and sends a transaction calling call.Method.
func (c *Client) WriteContract(ctx context.Context, call Call) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, failure.New(failure.KindTransactionRejected, call.Method, errors.New("no signing key configured"))
	}
	b, err := c.backend(call.ChainID)
	if err != nil {
		return common.Hash{}, failure.New(failure.KindNetwork, call.Method, err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, new(big.Int).SetUint64(call.ChainID))
	if err != nil {
		return common.Hash{}, failure.New(failure.KindTransactionRejected, call.Method, err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(call.Address, *call.ABI, b, b, b)
	tx, err := contract.Transact(opts, call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, failure.New(ClassifySendError(err), call.Method, err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls for the receipt of hash until it is included and
// buried under confirmations-1 further blocks. A failed receipt status is a
// revert; exceeding the receipt timeout is a confirmation timeout.
func (c *Client) WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	b, err := c.backend(chainID)
	if err != nil {
		return nil, failure.New(failure.KindNetwork, "wait "+hash.Hex(), err)
	}
	if confirmations == 0 {
		confirmations = 1
	}
	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	op := "wait " + hash.Hex()
	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, failure.New(failure.KindTransactionReverted, op, errors.New("receipt status failed"))
			}
			head, err := b.BlockNumber(ctx)
			if err != nil {
				return nil, failure.New(classifyWaitError(err), op, err)
			}
			if Confirmed(receipt.BlockNumber.Uint64(), head, confirmations) {
				return receipt, nil
			}
		case errors.Is(err, ethereum.NotFound):
			logger.Debug("Transaction %s not yet mined", hash.Hex())
		default:
			return nil, failure.New(classifyWaitError(err), op, err)
		}

		select {
		case <-ctx.Done():
			return nil, failure.New(classifyWaitError(ctx.Err()), op, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Confirmed reports whether a transaction mined in block has reached the
// given confirmation count at chain head. Inclusion counts as one.
func Confirmed(block, head, confirmations uint64) bool {
	return head >= block && head-block+1 >= confirmations
}
