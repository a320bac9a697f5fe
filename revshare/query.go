package revshare

import (
	"context"
	"math"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// PendingPayment synchronizes and returns the accumulator-derived amount
// the account may release.
func (e *Engine) PendingPayment(ctx context.Context, addr ledger.Address) (uint64, error) {
	if _, err := e.Synchronize(ctx); err != nil {
		return 0, err
	}
	return e.pendingOf(addr, nil), nil
}

// Owed synchronizes and returns everything the account can be paid:
// withheld plus pending.
func (e *Engine) Owed(ctx context.Context, addr ledger.Address) (uint64, error) {
	pending, err := e.PendingPayment(ctx, addr)
	if err != nil {
		return 0, err
	}
	return saturatingAdd(pending, e.Withheld(addr)), nil
}

// Withheld returns the dividends locked in for the account by share
// transfers. It does not synchronize.
func (e *Engine) Withheld(addr ledger.Address) uint64 {
	if a, ok := e.accounts[addr]; ok {
		return a.withheld
	}
	return 0
}

// Released returns the cumulative amount paid to the account.
func (e *Engine) Released(addr ledger.Address) uint64 {
	if a, ok := e.accounts[addr]; ok {
		return a.released
	}
	return 0
}

// TotalReleased returns the cumulative amount paid to all accounts,
// including payouts not yet settled.
func (e *Engine) TotalReleased() uint64 {
	return toUint64(e.totalReleased)
}

// TotalAccounted returns the cumulative amount folded into the accumulator.
func (e *Engine) TotalAccounted() *big.Int {
	return new(big.Int).Set(e.totalAccounted)
}

// Accumulator returns the dividend-per-share accumulator in Scale units.
func (e *Engine) Accumulator() *big.Int {
	return new(big.Int).Set(e.m)
}

// InFlight returns the total of payouts prepared but not yet settled or aborted.
func (e *Engine) InFlight() uint64 {
	return toUint64(e.inFlight)
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
