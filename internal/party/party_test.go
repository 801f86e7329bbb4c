package party

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/chain/chaintest"
	"github.com/rewired-gh/partytap/internal/failure"
)

const amoy = 80002

var (
	partyAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	beer      = common.HexToAddress("0x4444444444444444444444444444444444444444")
	usdc      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	guest     = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func stubParty(f *chaintest.Fake) {
	f.OnRead("owner", chaintest.Returns(owner))
	f.OnRead("beer", chaintest.Returns(beer))
	f.OnRead("usdc", chaintest.Returns(usdc))
	f.OnRead("price", chaintest.Returns(big.NewInt(2_500_000)))
}

func TestInfo(t *testing.T) {
	fake := chaintest.New()
	stubParty(fake)
	r := NewReader(fake, amoy)

	info, err := r.Info(context.Background(), partyAddr)
	require.NoError(t, err)
	assert.Equal(t, partyAddr, info.Address)
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, beer, info.Beer)
	assert.Equal(t, usdc, info.USDC)

	for _, op := range fake.Reads() {
		assert.Equal(t, uint64(amoy), op.ChainID)
		assert.Equal(t, partyAddr, op.Address)
	}
}

func TestIsOperator(t *testing.T) {
	fake := chaintest.New()
	stubParty(fake)
	r := NewReader(fake, amoy)

	ok, err := r.IsOperator(context.Background(), partyAddr, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsOperator(context.Background(), partyAddr, guest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalances(t *testing.T) {
	fake := chaintest.New()
	stubParty(fake)
	fake.OnRead("balanceOf", func(call chain.Call) ([]any, error) {
		if call.Address == beer {
			return []any{big.NewInt(3)}, nil
		}
		return []any{big.NewInt(12_340_000)}, nil
	})
	fake.OnRead("allowance", chaintest.Returns(big.NewInt(10_000_000)))
	r := NewReader(fake, amoy)
	ctx := context.Background()

	b, err := r.TokenBalance(ctx, beer, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Int64())

	u, err := r.TokenBalance(ctx, usdc, guest)
	require.NoError(t, err)
	assert.Equal(t, "12.34", FormatUSDC(u))

	a, err := r.Allowance(ctx, usdc, guest, partyAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), a.Int64())

	p, err := r.Price(ctx, partyAddr)
	require.NoError(t, err)
	assert.Equal(t, "2.5", FormatUSDC(p))
}

func TestReadFailures(t *testing.T) {
	fake := chaintest.New()
	fake.OnRead("owner", func(chain.Call) ([]any, error) { return nil, errors.New("rpc down") })
	fake.OnRead("price", chaintest.Returns("not a number"))
	fake.OnRead("balanceOf", chaintest.Returns())
	r := NewReader(fake, amoy)
	ctx := context.Background()

	_, err := r.Info(ctx, partyAddr)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))

	_, err = r.Price(ctx, partyAddr)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))

	_, err = r.TokenBalance(ctx, usdc, guest)
	assert.Equal(t, failure.KindReadFailure, failure.KindOf(err))
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "-", FormatUSDC(nil))
	assert.Equal(t, "0", FormatUSDC(big.NewInt(0)))
	assert.Equal(t, "10", FormatUSDC(big.NewInt(10_000_000)))
	assert.Equal(t, "0.000001", FormatUSDC(big.NewInt(1)))
	assert.Equal(t, "7", FormatUnits(big.NewInt(7), 0))
}
