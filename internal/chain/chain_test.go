package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/models"
)

func TestABIsPack(t *testing.T) {
	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := ERC20ABI.Pack("approve", spender, big.NewInt(10_000_000))
	require.NoError(t, err)
	assert.Len(t, data, 4+32+32)

	data, err = PartyABI.Pack("buy")
	require.NoError(t, err)
	assert.Len(t, data, 4)

	data, err = PartyABI.Pack("burnBeer", spender, big.NewInt(2))
	require.NoError(t, err)
	assert.Len(t, data, 4+32+32)

	_, err = NameRegistryABI.Pack("getName", spender)
	require.NoError(t, err)

	for _, m := range []string{"owner", "beer", "usdc", "price"} {
		_, ok := PartyABI.Methods[m]
		assert.True(t, ok, "party ABI missing %s", m)
	}
}

func TestConfirmed(t *testing.T) {
	tests := []struct {
		block, head, confirmations uint64
		want                       bool
	}{
		{10, 10, 1, true},
		{10, 9, 1, false},
		{10, 10, 2, false},
		{10, 11, 2, true},
		{10, 20, 3, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.block, tt.head, tt.confirmations), func(t *testing.T) {
			assert.Equal(t, tt.want, Confirmed(tt.block, tt.head, tt.confirmations))
		})
	}
}

type codeError struct {
	code int
	msg  string
}

func (e codeError) Error() string  { return e.msg }
func (e codeError) ErrorCode() int { return e.code }

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failure.Kind
	}{
		{"not authorized", fmt.Errorf("sign: %w", bind.ErrNotAuthorized), failure.KindTransactionRejected},
		{"eip-1193 rejection", codeError{code: 4001, msg: "User denied"}, failure.KindTransactionRejected},
		{"revert code", codeError{code: 3, msg: "execution reverted: sold out"}, failure.KindTransactionReverted},
		{"revert text", errors.New("failed to estimate gas: execution reverted"), failure.KindTransactionReverted},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), failure.KindConfirmationTimeout},
		{"transport", errors.New("dial tcp: connection refused"), failure.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySendError(tt.err))
		})
	}
}

type memJournal struct {
	records []models.PendingTransaction
	states  []models.TxState
}

func (j *memJournal) Record(tx *models.PendingTransaction) error {
	j.records = append(j.records, *tx)
	j.states = append(j.states, tx.State)
	return nil
}

func (j *memJournal) Update(tx *models.PendingTransaction) error {
	j.states = append(j.states, tx.State)
	return nil
}

type scriptedChain struct {
	writeErr error
	waitErr  error
	status   uint64
	written  int
	waited   int
}

func (c *scriptedChain) WriteContract(ctx context.Context, call Call) (common.Hash, error) {
	c.written++
	if c.writeErr != nil {
		return common.Hash{}, c.writeErr
	}
	return common.HexToHash("0x01"), nil
}

func (c *scriptedChain) WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	c.waited++
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	return &types.Receipt{Status: c.status, TxHash: hash, BlockNumber: big.NewInt(5)}, nil
}

func testCall() Call {
	return Call{ABI: PartyABI, Address: common.HexToAddress("0x22"), Method: "buy", ChainID: 80002}
}

func TestSubmitterExecute(t *testing.T) {
	tests := []struct {
		name       string
		chain      *scriptedChain
		wantKind   failure.Kind
		wantStates []models.TxState
		wantWaits  int
	}{
		{
			name:       "confirmed",
			chain:      &scriptedChain{status: types.ReceiptStatusSuccessful},
			wantStates: []models.TxState{models.TxSubmitting, models.TxSubmitted, models.TxConfirmed},
			wantWaits:  1,
		},
		{
			name:       "rejected before submission",
			chain:      &scriptedChain{writeErr: codeError{code: 4001, msg: "user rejected"}},
			wantKind:   failure.KindTransactionRejected,
			wantStates: []models.TxState{models.TxSubmitting, models.TxFailed},
			wantWaits:  0,
		},
		{
			name:       "reverted receipt",
			chain:      &scriptedChain{status: types.ReceiptStatusFailed},
			wantKind:   failure.KindTransactionReverted,
			wantStates: []models.TxState{models.TxSubmitting, models.TxSubmitted, models.TxReverted},
			wantWaits:  1,
		},
		{
			name:       "wait timeout",
			chain:      &scriptedChain{waitErr: context.DeadlineExceeded},
			wantKind:   failure.KindConfirmationTimeout,
			wantStates: []models.TxState{models.TxSubmitting, models.TxSubmitted, models.TxFailed},
			wantWaits:  1,
		},
		{
			name:       "tagged wait failure keeps its kind",
			chain:      &scriptedChain{waitErr: failure.New(failure.KindTransactionReverted, "wait", errors.New("reverted"))},
			wantKind:   failure.KindTransactionReverted,
			wantStates: []models.TxState{models.TxSubmitting, models.TxSubmitted, models.TxReverted},
			wantWaits:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &memJournal{}
			s := NewSubmitter(tt.chain, tt.chain, j, 1)

			receipt, err := s.Execute(context.Background(), models.TxBuy, common.HexToAddress("0x11"), testCall())
			if tt.wantKind == failure.KindUnknown {
				require.NoError(t, err)
				assert.NotNil(t, receipt)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, failure.KindOf(err))
				assert.Nil(t, receipt)
			}
			assert.Equal(t, tt.wantStates, j.states)
			assert.Equal(t, tt.wantWaits, tt.chain.waited)
			require.Len(t, j.records, 1)
			assert.Equal(t, models.TxBuy, j.records[0].Kind)
			assert.NotEmpty(t, j.records[0].ID)
		})
	}
}

func TestSubmitterNilJournal(t *testing.T) {
	c := &scriptedChain{status: types.ReceiptStatusSuccessful}
	s := NewSubmitter(c, c, nil, 0)
	_, err := s.Execute(context.Background(), models.TxApprove, common.Address{}, testCall())
	assert.NoError(t, err)
}

type signingChain struct {
	*scriptedChain
	account common.Address
}

func (c *signingChain) Address() common.Address {
	return c.account
}

func TestSubmitterSenderMustMatchSigner(t *testing.T) {
	signer := common.HexToAddress("0x11")
	c := &signingChain{scriptedChain: &scriptedChain{status: types.ReceiptStatusSuccessful}, account: signer}
	j := &memJournal{}
	s := NewSubmitter(c, c, j, 1)

	_, err := s.Execute(context.Background(), models.TxBurn, common.HexToAddress("0x99"), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSenderMismatch)
	assert.Equal(t, failure.KindTransactionRejected, failure.KindOf(err))
	assert.Equal(t, 0, c.written)
	assert.Empty(t, j.records, "nothing is journaled for a refused write")

	receipt, err := s.Execute(context.Background(), models.TxBurn, signer, testCall())
	require.NoError(t, err)
	assert.NotNil(t, receipt)
	assert.Equal(t, 1, c.written)
	require.Len(t, j.records, 1)
	assert.Equal(t, signer, j.records[0].From)
}
