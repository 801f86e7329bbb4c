// Package chaintest provides an in-memory chain for pipeline tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rewired-gh/partytap/internal/chain"
)

// Op is one recorded call against the fake.
type Op struct {
	Kind    string // read, write or wait
	Method  string
	Address common.Address
	Args    []any
	ChainID uint64
}

// Fake implements chain.Reader, chain.Writer and chain.ReceiptWaiter.
// Reads are answered by stubs registered per method; writes and waits
// succeed unless a failure was registered for their method.
type Fake struct {
	mu       sync.Mutex
	ops      []Op
	reads    map[string]func(call chain.Call) ([]any, error)
	writeErr map[string]error
	waitErr  map[string]error
	pending  map[common.Hash]string
	nonce    int64
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		reads:    make(map[string]func(chain.Call) ([]any, error)),
		writeErr: make(map[string]error),
		waitErr:  make(map[string]error),
		pending:  make(map[common.Hash]string),
	}
}

// OnRead registers the answer for view calls to method.
func (f *Fake) OnRead(method string, fn func(call chain.Call) ([]any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[method] = fn
}

// FailWrite makes writes calling method fail with err.
func (f *Fake) FailWrite(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr[method] = err
}

// FailWait makes receipt waits for transactions calling method fail with err.
func (f *Fake) FailWait(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr[method] = err
}

func (f *Fake) ReadContract(ctx context.Context, call chain.Call) ([]any, error) {
	f.mu.Lock()
	f.ops = append(f.ops, Op{Kind: "read", Method: call.Method, Address: call.Address, Args: call.Args, ChainID: call.ChainID})
	fn, ok := f.reads[call.Method]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no stub for %s", call.Method)
	}
	return fn(call)
}

func (f *Fake) WriteContract(ctx context.Context, call chain.Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, Op{Kind: "write", Method: call.Method, Address: call.Address, Args: call.Args, ChainID: call.ChainID})
	if err := f.writeErr[call.Method]; err != nil {
		return common.Hash{}, err
	}
	f.nonce++
	hash := common.BigToHash(big.NewInt(f.nonce))
	f.pending[hash] = call.Method
	return hash, nil
}

func (f *Fake) WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method, ok := f.pending[hash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", hash.Hex())
	}
	f.ops = append(f.ops, Op{Kind: "wait", Method: method, ChainID: chainID})
	if err := f.waitErr[method]; err != nil {
		return nil, err
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(100 + f.nonce),
	}, nil
}

// Ops returns every recorded call in order.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Op(nil), f.ops...)
}

// Trace returns "kind:method" for every write and wait in order.
func (f *Fake) Trace() []string {
	var trace []string
	for _, op := range f.Ops() {
		if op.Kind == "read" {
			continue
		}
		trace = append(trace, op.Kind+":"+op.Method)
	}
	return trace
}

// Writes returns the recorded write calls.
func (f *Fake) Writes() []Op {
	var writes []Op
	for _, op := range f.Ops() {
		if op.Kind == "write" {
			writes = append(writes, op)
		}
	}
	return writes
}

// Reads returns the recorded read calls.
func (f *Fake) Reads() []Op {
	var reads []Op
	for _, op := range f.Ops() {
		if op.Kind == "read" {
			reads = append(reads, op)
		}
	}
	return reads
}

// Returns is a read stub answering with fixed values.
func Returns(values ...any) func(chain.Call) ([]any, error) {
	return func(chain.Call) ([]any, error) {
		return values, nil
	}
}
