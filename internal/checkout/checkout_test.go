package checkout

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/chain/chaintest"
	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/models"
	"github.com/rewired-gh/partytap/internal/party"
)

var (
	operator  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	partyAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	guest     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	beerAddr  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func operatorSession() *models.Session {
	return &models.Session{
		Account:     operator,
		DisplayName: "bar.eth",
		Party:       partyAddr,
		USDC:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Beer:        beerAddr,
		Allowance:   big.NewInt(10_000_000),
		ChainID:     80002,
	}
}

type stubScanner struct {
	mu     sync.Mutex
	holder *models.Holder
	err    error
	calls  int
}

func (s *stubScanner) Scan(ctx context.Context) (*models.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	h := *s.holder
	return &h, nil
}

func newOrchestrator() (*chaintest.Fake, *Orchestrator) {
	fake := chaintest.New()
	fake.OnRead("balanceOf", chaintest.Returns(big.NewInt(4)))
	return fake, New(chain.NewSubmitter(fake, fake, nil, 1), party.NewReader(fake, 80002))
}

func TestCheckout_Preconditions(t *testing.T) {
	tests := []struct {
		name     string
		holder   *models.Holder
		quantity int64
		wantErr  error
	}{
		{"nil holder", nil, 1, ErrNoHolder},
		{"zero address holder", &models.Holder{}, 1, ErrNoHolder},
		{"zero quantity", &models.Holder{Address: guest}, 0, ErrInvalidQuantity},
		{"negative quantity", &models.Holder{Address: guest}, -2, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, o := newOrchestrator()
			res, err := o.Checkout(context.Background(), operatorSession(), tt.holder, tt.quantity)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, fake.Ops())
		})
	}
}

func TestCheckout_BurnsFromHolder(t *testing.T) {
	fake, o := newOrchestrator()

	res, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest, DisplayName: "bob.eth"}, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"write:burnBeer", "wait:burnBeer"}, fake.Trace())
	writes := fake.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, partyAddr, writes[0].Address)
	assert.Equal(t, []any{guest, big.NewInt(3)}, writes[0].Args)
	assert.Equal(t, uint64(80002), writes[0].ChainID)

	require.NotNil(t, res)
	assert.Equal(t, guest, res.Holder.Address)
	assert.Equal(t, int64(3), res.Quantity)
	assert.Equal(t, int64(4), res.BeerBalance.Int64())
	assert.False(t, o.InProgress())
}

func TestCheckout_RefetchesHolderBalanceAfterConfirmation(t *testing.T) {
	fake, o := newOrchestrator()

	_, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest}, 2)
	require.NoError(t, err)

	ops := fake.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, "wait", ops[1].Kind)
	assert.Equal(t, "burnBeer", ops[1].Method)
	assert.Equal(t, "read", ops[2].Kind)
	assert.Equal(t, "balanceOf", ops[2].Method)
	assert.Equal(t, beerAddr, ops[2].Address)
	assert.Equal(t, []any{guest}, ops[2].Args)
}

func TestCheckout_RefreshFailureIsReadFailure(t *testing.T) {
	fake, o := newOrchestrator()
	fake.OnRead("balanceOf", func(chain.Call) ([]any, error) { return nil, errors.New("rpc down") })

	res, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest}, 1)
	require.Error(t, err)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))
	require.NotNil(t, res, "the burn confirmed")
	assert.Nil(t, res.BeerBalance)
	assert.Len(t, fake.Writes(), 1)
}

func TestCheckout_RevertIsReported(t *testing.T) {
	fake, o := newOrchestrator()
	fake.FailWait("burnBeer", failure.New(failure.KindTransactionReverted, "burnBeer", errors.New("insufficient beer")))

	res, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest}, 1)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, failure.KindTransactionReverted, failure.KindOf(err))
	assert.Empty(t, fake.Reads(), "no refresh after a failed burn")
}

type blockingWriter struct {
	*chaintest.Fake
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWriter) WriteContract(ctx context.Context, call chain.Call) (common.Hash, error) {
	close(w.entered)
	<-w.release
	return w.Fake.WriteContract(ctx, call)
}

func TestCheckout_RejectsReentry(t *testing.T) {
	fake := chaintest.New()
	fake.OnRead("balanceOf", chaintest.Returns(big.NewInt(0)))
	w := &blockingWriter{Fake: fake, entered: make(chan struct{}), release: make(chan struct{})}
	o := New(chain.NewSubmitter(w, fake, nil, 1), party.NewReader(fake, 80002))

	done := make(chan error, 1)
	go func() {
		_, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest}, 1)
		done <- err
	}()
	<-w.entered
	assert.True(t, o.InProgress())

	_, err := o.Checkout(context.Background(), operatorSession(), &models.Holder{Address: guest}, 1)
	assert.ErrorIs(t, err, ErrInProgress)

	close(w.release)
	require.NoError(t, <-done)
	assert.Len(t, fake.Writes(), 1)
}

func TestSession_Lifecycle(t *testing.T) {
	fake, o := newOrchestrator()
	scanner := &stubScanner{holder: &models.Holder{Address: guest, DisplayName: "bob.eth"}}

	s := o.Open(operatorSession(), scanner)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, int64(1), s.Quantity())
	assert.Nil(t, s.Holder())

	_, err := s.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrNoHolder)
	assert.Empty(t, fake.Writes())

	h, err := s.ScanHolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, guest, h.Address)

	// A second scan keeps the first holder.
	scanner.holder = &models.Holder{Address: operator}
	h, err = s.ScanHolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, guest, h.Address)
	assert.Equal(t, 1, scanner.calls)

	require.NoError(t, s.SetQuantity(2))
	assert.ErrorIs(t, s.SetQuantity(0), ErrInvalidQuantity)
	assert.Equal(t, int64(2), s.Quantity())

	res, err := s.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.BeerBalance.Int64())
	assert.True(t, s.Closed())
	assert.Nil(t, s.Holder())
	assert.Equal(t, []any{guest, big.NewInt(2)}, fake.Writes()[0].Args)

	_, err = s.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.ScanHolder(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Len(t, fake.Writes(), 1)
}

func TestSession_FailedScanLeavesNoHolder(t *testing.T) {
	_, o := newOrchestrator()
	scanner := &stubScanner{err: failure.New(failure.KindWristbandScan, "scan", errors.New("tag removed"))}

	s := o.Open(operatorSession(), scanner)
	_, err := s.ScanHolder(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindWristbandScan, failure.KindOf(err))
	assert.Nil(t, s.Holder())
	assert.False(t, s.Closed())

	scanner.err = nil
	scanner.holder = &models.Holder{Address: guest}
	h, err := s.ScanHolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, guest, h.Address)
}

func TestSession_FailedBurnStaysOpen(t *testing.T) {
	fake, o := newOrchestrator()
	fake.FailWrite("burnBeer", errors.New("connection reset"))
	scanner := &stubScanner{holder: &models.Holder{Address: guest}}

	s := o.Open(operatorSession(), scanner)
	_, err := s.ScanHolder(context.Background())
	require.NoError(t, err)

	_, err = s.Checkout(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindNetwork, failure.KindOf(err))
	assert.False(t, s.Closed())
	require.NotNil(t, s.Holder())

	fake.FailWrite("burnBeer", nil)
	_, err = s.Checkout(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Closed())
	assert.Equal(t, 1, scanner.calls, "retry does not re-scan")
	assert.Len(t, fake.Writes(), 2)
}

func TestSession_ClosesWhenOnlyRefreshFails(t *testing.T) {
	fake, o := newOrchestrator()
	fake.OnRead("balanceOf", func(chain.Call) ([]any, error) { return nil, errors.New("rpc down") })

	s := o.Open(operatorSession(), &stubScanner{holder: &models.Holder{Address: guest}})
	_, err := s.ScanHolder(context.Background())
	require.NoError(t, err)

	res, err := s.Checkout(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))
	require.NotNil(t, res)
	assert.True(t, s.Closed(), "a confirmed burn is never repeated")
	assert.Len(t, fake.Writes(), 1)
}

func TestSession_Dismiss(t *testing.T) {
	fake, o := newOrchestrator()
	s := o.Open(operatorSession(), &stubScanner{holder: &models.Holder{Address: guest}})
	_, err := s.ScanHolder(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Dismiss())
	assert.True(t, s.Closed())
	assert.Nil(t, s.Holder())
	_, err = s.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, fake.Writes())
}
