// Package models defines the core domain entities: sessions, holders,
// purchase events, chart series and in-flight transactions.
package models

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Session carries the connected wallet and the contracts a purchase or
// checkout operates on. It is passed explicitly into every orchestrator call.
type Session struct {
	Account     common.Address // connected wallet, signs every write
	DisplayName string         // resolved primary name, empty when unresolved
	Party       common.Address
	USDC        common.Address
	Beer        common.Address
	Allowance   *big.Int // fixed approve amount in stablecoin base units
	ChainID     uint64   // chain the purchase and checkout writes execute on
}

// Validate checks session field constraints.
func (s *Session) Validate() error {
	if s.Account == (common.Address{}) {
		return errors.New("session account must be set")
	}
	if s.Party == (common.Address{}) {
		return errors.New("party address must be set")
	}
	if s.USDC == (common.Address{}) {
		return errors.New("usdc address must be set")
	}
	if s.Beer == (common.Address{}) {
		return errors.New("beer address must be set")
	}
	if s.Allowance == nil || s.Allowance.Sign() <= 0 {
		return errors.New("allowance must be positive")
	}
	if s.ChainID == 0 {
		return errors.New("chain id must be set")
	}
	return nil
}

// PartyInfo is the configuration a party contract exposes.
type PartyInfo struct {
	Address common.Address
	Owner   common.Address
	Beer    common.Address
	USDC    common.Address
}

// Holder is the wristband-resolved identity whose balance a checkout debits.
type Holder struct {
	Address     common.Address
	DisplayName string // empty when unresolved
}

// Label returns the display name when resolved, otherwise the hex address.
func (h *Holder) Label() string {
	if h.DisplayName != "" {
		return h.DisplayName
	}
	return h.Address.Hex()
}
