package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
)

// FungibleToken is a token ledger that can serve as the payment asset.
// *ledger.Ledger satisfies it.
type FungibleToken interface {
	BalanceOf(owner ledger.Address) uint64
	Transfer(ctx context.Context, from, to ledger.Address, amount uint64) error
}

// AssetRegistry resolves token addresses to deployed tokens.
type AssetRegistry interface {
	Lookup(addr ledger.Address) (FungibleToken, bool)
}

// Registry is an in-memory AssetRegistry.
type Registry struct {
	mu     sync.RWMutex
	assets map[ledger.Address]FungibleToken
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{assets: make(map[ledger.Address]FungibleToken)}
}

// Register deploys tok at addr.
func (r *Registry) Register(addr ledger.Address, tok FungibleToken) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: asset address", ledger.ErrZeroAddress)
	}
	if tok == nil {
		return fmt.Errorf("%w: token", ErrNilParam)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, addr)
	}
	r.assets[addr] = tok
	return nil
}

// Lookup returns the token deployed at addr.
func (r *Registry) Lookup(addr ledger.Address) (FungibleToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.assets[addr]
	return tok, ok
}

var _ AssetRegistry = (*Registry)(nil)

// Token pays out a fungible token held by a fixed holder address.
type Token struct {
	asset     FungibleToken
	assetAddr ledger.Address
	holder    ledger.Address
}

// NewToken binds the token deployed at asset, held by holder. It fails with
// ErrNotAContract if nothing is deployed at asset.
func NewToken(reg AssetRegistry, asset, holder ledger.Address) (*Token, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry", ErrNilParam)
	}
	if holder.IsZero() {
		return nil, fmt.Errorf("%w: holder", ledger.ErrZeroAddress)
	}
	tok, ok := reg.Lookup(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAContract, asset)
	}
	return &Token{asset: tok, assetAddr: asset, holder: holder}, nil
}

// Asset returns the payment token's address.
func (t *Token) Asset() ledger.Address { return t.assetAddr }

// Holder returns the address whose token balance is distributed.
func (t *Token) Holder() ledger.Address { return t.holder }

// Balance returns the holder's token balance.
func (t *Token) Balance(context.Context) (uint64, error) {
	return t.asset.BalanceOf(t.holder), nil
}

// Send transfers amount tokens from the holder to the given address.
func (t *Token) Send(ctx context.Context, to ledger.Address, amount uint64) error {
	return t.asset.Transfer(ctx, t.holder, to, amount)
}

var _ revshare.Gateway = (*Token)(nil)
