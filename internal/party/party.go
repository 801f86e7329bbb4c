// Package party is the read layer over a party contract and its tokens:
// configuration, price, balances and allowance.
package party

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/models"
)

// StablecoinDecimals is the fixed-point scale of prices and stablecoin amounts.
const StablecoinDecimals = 6

// Reader reads party state from the purchase chain.
type Reader struct {
	chain   chain.Reader
	chainID uint64
}

// NewReader creates a Reader on chainID.
func NewReader(r chain.Reader, chainID uint64) *Reader {
	return &Reader{chain: r, chainID: chainID}
}

// Info reads the owner, beer token and stablecoin addresses of party.
func (r *Reader) Info(ctx context.Context, party common.Address) (*models.PartyInfo, error) {
	info := &models.PartyInfo{Address: party}
	fields := []struct {
		method string
		dst    *common.Address
	}{
		{"owner", &info.Owner},
		{"beer", &info.Beer},
		{"usdc", &info.USDC},
	}
	for _, f := range fields {
		addr, err := r.address(ctx, party, f.method)
		if err != nil {
			return nil, err
		}
		*f.dst = addr
	}
	return info, nil
}

// IsOperator reports whether account owns party and may run checkouts.
func (r *Reader) IsOperator(ctx context.Context, party, account common.Address) (bool, error) {
	owner, err := r.address(ctx, party, "owner")
	if err != nil {
		return false, err
	}
	return owner == account, nil
}

// Price reads the current beer price in stablecoin base units.
func (r *Reader) Price(ctx context.Context, party common.Address) (*big.Int, error) {
	return r.bigInt(ctx, chain.Call{ABI: chain.PartyABI, Address: party, Method: "price"})
}

// TokenBalance reads the ERC-20 balance of holder. It serves both the beer
// balance and the stablecoin balance.
func (r *Reader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return r.bigInt(ctx, chain.Call{ABI: chain.ERC20ABI, Address: token, Method: "balanceOf", Args: []any{holder}})
}

// Allowance reads how much spender may still debit from owner.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return r.bigInt(ctx, chain.Call{ABI: chain.ERC20ABI, Address: token, Method: "allowance", Args: []any{owner, spender}})
}

func (r *Reader) address(ctx context.Context, party common.Address, method string) (common.Address, error) {
	out, err := r.read(ctx, chain.Call{ABI: chain.PartyABI, Address: party, Method: method})
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out.(common.Address)
	if !ok {
		return common.Address{}, failure.New(failure.KindReadFailure, method, fmt.Errorf("unexpected result type %T", out))
	}
	return addr, nil
}

func (r *Reader) bigInt(ctx context.Context, call chain.Call) (*big.Int, error) {
	out, err := r.read(ctx, call)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, failure.New(failure.KindReadFailure, call.Method, fmt.Errorf("unexpected result type %T", out))
	}
	return v, nil
}

func (r *Reader) read(ctx context.Context, call chain.Call) (any, error) {
	call.ChainID = r.chainID
	out, err := r.chain.ReadContract(ctx, call)
	if err != nil {
		if failure.KindOf(err) == failure.KindUnknown {
			err = failure.New(failure.KindReadFailure, call.Method, err)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, failure.New(failure.KindReadFailure, call.Method, fmt.Errorf("empty result"))
	}
	return out[0], nil
}

// FormatUnits renders a fixed-point amount with the given number of decimals.
// A nil amount renders as "-".
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "-"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatUSDC renders a stablecoin amount.
func FormatUSDC(amount *big.Int) string {
	return FormatUnits(amount, StablecoinDecimals)
}
