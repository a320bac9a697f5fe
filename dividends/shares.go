package dividends

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
)

// Mint creates amount shares for to. With a minter configured, caller must be it.
func (t *Token) Mint(ctx context.Context, caller, to ledger.Address, amount uint64) error {
	if err := t.authorize(caller); err != nil {
		metrics.ShareMutationsTotal.WithLabelValues("mint", metrics.Status(err)).Inc()
		return err
	}
	return t.mutate("mint", func() error { return t.led.Mint(ctx, to, amount) })
}

// Burn destroys amount of from's shares. With a minter configured, caller must be it.
func (t *Token) Burn(ctx context.Context, caller, from ledger.Address, amount uint64) error {
	if err := t.authorize(caller); err != nil {
		metrics.ShareMutationsTotal.WithLabelValues("burn", metrics.Status(err)).Inc()
		return err
	}
	return t.mutate("burn", func() error { return t.led.Burn(ctx, from, amount) })
}

// Transfer moves amount shares from from to to. Dividends either party has
// earned so far stay with that party. Moving more shares than from holds
// fails with revshare.ErrInsufficientShares.
func (t *Token) Transfer(ctx context.Context, from, to ledger.Address, amount uint64) error {
	return t.mutate("transfer", func() error { return t.led.Transfer(ctx, from, to, amount) })
}

// TransferFrom moves shares on behalf of from using spender's allowance.
func (t *Token) TransferFrom(ctx context.Context, spender, from, to ledger.Address, amount uint64) error {
	return t.mutate("transfer_from", func() error { return t.led.TransferFrom(ctx, spender, from, to, amount) })
}

// Approve sets spender's allowance over owner's shares.
func (t *Token) Approve(owner, spender ledger.Address, amount uint64) error {
	t.lock()
	defer t.unlock()
	return t.led.Approve(owner, spender, amount)
}

// Allowance returns how many of owner's shares spender may move.
func (t *Token) Allowance(owner, spender ledger.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.led.Allowance(owner, spender)
}

// BalanceOf returns owner's share balance.
func (t *Token) BalanceOf(owner ledger.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.led.BalanceOf(owner)
}

// TotalSupply returns the number of shares in existence.
func (t *Token) TotalSupply() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.led.TotalSupply()
}

// Holders returns every non-zero balance in address order.
func (t *Token) Holders() []ledger.Holding {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.led.Holders()
}

func (t *Token) authorize(caller ledger.Address) error {
	if t.minter != nil && caller != *t.minter {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

func (t *Token) mutate(op string, fn func() error) error {
	t.lock()
	err := fn()
	t.unlock()
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		err = fmt.Errorf("%w: %w", revshare.ErrInsufficientShares, err)
	}
	metrics.ShareMutationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		t.log.Debug("share mutation rejected", "op", op, "error", err)
	}
	return err
}
