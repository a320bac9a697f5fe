// Package ledger implements the fungible share ledger that backs a
// dividend-paying token: balances, allowances, mint, burn and transfer.
//
// Every balance mutation funnels through a single update step that first
// validates the request, then gives the registered Hook a chance to veto
// it, and only then applies it. A Hook observing BeforeUpdate therefore
// always sees the pre-mutation balances and total supply.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Hook is notified before every balance mutation. Mint is reported with a
// zero from address and burn with a zero to address. Returning an error
// aborts the mutation with no state change.
type Hook interface {
	BeforeUpdate(ctx context.Context, from, to Address, amount uint64) error
}

// TransferEvent is emitted after a successful balance mutation.
type TransferEvent struct {
	From   Address
	To     Address
	Amount uint64
}

// Holding is one holder's balance.
type Holding struct {
	Address Address
	Balance uint64
}

// Ledger is a fungible balance ledger. It is not safe for concurrent use;
// callers serialise access.
type Ledger struct {
	name     string
	symbol   string
	decimals uint8

	supply     uint64
	balances   map[Address]uint64
	allowances map[Address]map[Address]uint64

	hook      Hook
	listeners []func(TransferEvent)
}

// New creates an empty ledger.
func New(name, symbol string, decimals uint8) *Ledger {
	return &Ledger{
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[Address]uint64),
		allowances: make(map[Address]map[Address]uint64),
	}
}

// SetHook installs the hook called before each balance mutation.
func (l *Ledger) SetHook(h Hook) { l.hook = h }

// OnTransfer registers fn to receive every TransferEvent.
func (l *Ledger) OnTransfer(fn func(TransferEvent)) {
	l.listeners = append(l.listeners, fn)
}

// Name returns the token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the number of display decimals.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() uint64 { return l.supply }

// BalanceOf returns the balance held by owner.
func (l *Ledger) BalanceOf(owner Address) uint64 { return l.balances[owner] }

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender Address) uint64 {
	return l.allowances[owner][spender]
}

// Holders returns every non-zero balance ordered by address.
func (l *Ledger) Holders() []Holding {
	out := make([]Holding, 0, len(l.balances))
	for addr, bal := range l.balances {
		if bal == 0 {
			continue
		}
		out = append(out, Holding{Address: addr, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Compare(out[j].Address) < 0
	})
	return out
}

// Approve sets the amount spender may transfer from owner's balance.
func (l *Ledger) Approve(owner, spender Address, amount uint64) error {
	if owner.IsZero() || spender.IsZero() {
		return fmt.Errorf("%w: approve", ErrZeroAddress)
	}
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[Address]uint64)
		l.allowances[owner] = m
	}
	m[spender] = amount
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, from, to Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: transfer", ErrZeroAddress)
	}
	return l.update(ctx, from, to, amount)
}

// TransferFrom moves amount from one holder to another on the authority of
// spender's allowance. The allowance is consumed only if the transfer
// succeeds.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to Address, amount uint64) error {
	if spender.IsZero() || from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: transferFrom", ErrZeroAddress)
	}
	allowed := l.Allowance(from, spender)
	if allowed < amount {
		return fmt.Errorf("%w: allowed %d, requested %d", ErrInsufficientAllowance, allowed, amount)
	}
	if err := l.update(ctx, from, to, amount); err != nil {
		return err
	}
	if allowed != math.MaxUint64 {
		l.allowances[from][spender] = allowed - amount
	}
	return nil
}

// Mint creates amount new units owned by to.
func (l *Ledger) Mint(ctx context.Context, to Address, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("%w: mint", ErrZeroAddress)
	}
	return l.update(ctx, ZeroAddress, to, amount)
}

// Burn destroys amount units owned by from.
func (l *Ledger) Burn(ctx context.Context, from Address, amount uint64) error {
	if from.IsZero() {
		return fmt.Errorf("%w: burn", ErrZeroAddress)
	}
	return l.update(ctx, from, ZeroAddress, amount)
}

// update is the single mutation path for mint (from zero), burn (to zero)
// and transfer.
func (l *Ledger) update(ctx context.Context, from, to Address, amount uint64) error {
	if !from.IsZero() {
		if bal := l.balances[from]; bal < amount {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientBalance, bal, amount)
		}
	} else if l.supply > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}

	if l.hook != nil {
		if err := l.hook.BeforeUpdate(ctx, from, to, amount); err != nil {
			return err
		}
	}

	if from.IsZero() {
		l.supply += amount
	} else {
		l.debit(from, amount)
	}
	if to.IsZero() {
		l.supply -= amount
	} else {
		l.balances[to] += amount
	}

	ev := TransferEvent{From: from, To: to, Amount: amount}
	for _, fn := range l.listeners {
		fn(ev)
	}
	return nil
}

func (l *Ledger) debit(holder Address, amount uint64) {
	bal := l.balances[holder] - amount
	if bal == 0 {
		delete(l.balances, holder)
		return
	}
	l.balances[holder] = bal
}
