// Package identity resolves wallet addresses to human-readable names using the
// reverse-name registry on the naming chain.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rewired-gh/partytap/internal/chain"
	"github.com/rewired-gh/partytap/internal/failure"
)

// Normalize maps a raw reverse record to a display name. A record starting
// with "." is an empty placeholder and resolves to "".
func Normalize(raw string) string {
	if strings.HasPrefix(raw, ".") {
		return ""
	}
	return raw
}

// Resolver queries the registry contract on its own chain, independent of the
// chain purchases execute on.
type Resolver struct {
	reader   chain.Reader
	registry common.Address
	chainID  uint64
}

// NewResolver creates a Resolver for registry on chainID.
func NewResolver(reader chain.Reader, registry common.Address, chainID uint64) *Resolver {
	return &Resolver{reader: reader, registry: registry, chainID: chainID}
}

// Resolve returns the display name of addr, or "" when unresolved.
// The zero address is never queried.
func (r *Resolver) Resolve(ctx context.Context, addr common.Address) (string, error) {
	if addr == (common.Address{}) {
		return "", nil
	}

	out, err := r.reader.ReadContract(ctx, chain.Call{
		ABI:     chain.NameRegistryABI,
		Address: r.registry,
		Method:  "getName",
		Args:    []any{addr},
		ChainID: r.chainID,
	})
	if err != nil {
		return "", failure.New(failure.KindReadFailure, "resolve "+addr.Hex(), err)
	}
	if len(out) == 0 {
		return "", failure.New(failure.KindReadFailure, "resolve "+addr.Hex(), errors.New("empty result"))
	}
	raw, ok := out[0].(string)
	if !ok {
		return "", failure.New(failure.KindReadFailure, "resolve "+addr.Hex(), fmt.Errorf("unexpected result type %T", out[0]))
	}
	return Normalize(raw), nil
}

// NameResolver is satisfied by *Resolver.
type NameResolver interface {
	Resolve(ctx context.Context, addr common.Address) (string, error)
}

// Primary holds the resolved name of the connected wallet. The name is only
// re-queried on Refetch, so callers that change the account must refetch.
type Primary struct {
	resolver NameResolver

	mu      sync.RWMutex
	account common.Address
	name    string
}

// NewPrimary creates a Primary for account. Its name is unresolved until Refetch.
func NewPrimary(resolver NameResolver, account common.Address) *Primary {
	return &Primary{resolver: resolver, account: account}
}

// Account returns the tracked wallet address.
func (p *Primary) Account() common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account
}

// Name returns the last resolved name, "" when unresolved.
func (p *Primary) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// SetAccount switches the tracked wallet and clears the cached name.
func (p *Primary) SetAccount(account common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if account != p.account {
		p.account = account
		p.name = ""
	}
}

// Refetch re-resolves the tracked wallet's name. On failure the previous
// name is kept.
func (p *Primary) Refetch(ctx context.Context) (string, error) {
	account := p.Account()
	name, err := p.resolver.Resolve(ctx, account)
	if err != nil {
		return p.Name(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == account {
		p.name = name
	}
	return name, nil
}
