package revshare

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// Payout is a release whose bookkeeping has been committed but whose
// transfer has not yet been confirmed. Exactly one of Settle or Abort must
// be called once the gateway transfer finishes.
//
// Between Prepare and Settle the paid amount already counts as released, so
// a caller re-entering the engine from inside the transfer sees the reduced
// entitlement. The amount is also tracked as in flight, keeping Synchronize
// from mistaking the not-yet-moved funds for a new deposit.
type Payout struct {
	To     ledger.Address
	Amount uint64

	fromWithheld uint64
	fromPending  uint64

	e    *Engine
	done bool
}

// PrepareRelease commits a release of amount from the account's pending
// payment. Amount zero is valid and moves nothing.
func (e *Engine) PrepareRelease(ctx context.Context, addr ledger.Address, amount uint64) (*Payout, error) {
	if _, err := e.Synchronize(ctx); err != nil {
		return nil, err
	}
	if err := e.requireHolder(addr); err != nil {
		return nil, err
	}
	pending := e.pendingOf(addr, nil)
	if amount > pending {
		return nil, fmt.Errorf("%w: requested %d, pending %d", ErrAmountExceedsOwed, amount, pending)
	}
	return e.commit(addr, 0, amount), nil
}

// PrepareReleaseWithheld commits a release of amount from the account's
// withheld balance.
func (e *Engine) PrepareReleaseWithheld(_ context.Context, addr ledger.Address, amount uint64) (*Payout, error) {
	if err := e.requireHolder(addr); err != nil {
		return nil, err
	}
	withheld := e.Withheld(addr)
	if amount > withheld {
		return nil, fmt.Errorf("%w: requested %d, withheld %d", ErrAmountExceedsWithheld, amount, withheld)
	}
	return e.commit(addr, amount, 0), nil
}

// PrepareReleaseAll commits a release of everything the account is owed,
// withheld first and then pending.
func (e *Engine) PrepareReleaseAll(ctx context.Context, addr ledger.Address) (*Payout, error) {
	if _, err := e.Synchronize(ctx); err != nil {
		return nil, err
	}
	if err := e.requireHolder(addr); err != nil {
		return nil, err
	}
	withheld := e.Withheld(addr)
	pending := e.pendingOf(addr, nil)
	if withheld == 0 && pending == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingOwed, addr)
	}
	if pending > math.MaxUint64-withheld {
		// Whatever does not fit a single payout stays pending.
		pending = math.MaxUint64 - withheld
	}
	return e.commit(addr, withheld, pending), nil
}

// Release prepares a release from pending, moves the funds through the
// gateway and settles it, aborting the bookkeeping if the transfer fails.
func (e *Engine) Release(ctx context.Context, addr ledger.Address, amount uint64) error {
	p, err := e.PrepareRelease(ctx, addr, amount)
	if err != nil {
		return err
	}
	return p.Execute(ctx, e.gw)
}

// ReleaseAll is the one-shot form of PrepareReleaseAll. It returns the amount paid.
func (e *Engine) ReleaseAll(ctx context.Context, addr ledger.Address) (uint64, error) {
	p, err := e.PrepareReleaseAll(ctx, addr)
	if err != nil {
		return 0, err
	}
	if err := p.Execute(ctx, e.gw); err != nil {
		return 0, err
	}
	return p.Amount, nil
}

func (e *Engine) requireHolder(addr ledger.Address) error {
	a := e.accounts[addr]
	if e.shares.BalanceOf(addr) > 0 || (a != nil && (a.everHeld || a.withheld > 0)) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoShares, addr)
}

func (e *Engine) commit(addr ledger.Address, fromWithheld, fromPending uint64) *Payout {
	amount := fromWithheld + fromPending
	a := e.account(addr)
	a.withheld -= fromWithheld
	a.correction.Sub(a.correction, unitsToScaled(fromPending))
	a.released += amount

	amt := new(big.Int).SetUint64(amount)
	e.totalReleased.Add(e.totalReleased, amt)
	e.inFlight.Add(e.inFlight, amt)

	return &Payout{
		To:           addr,
		Amount:       amount,
		fromWithheld: fromWithheld,
		fromPending:  fromPending,
		e:            e,
	}
}

// Settle records that the payout's funds have left the gateway.
func (p *Payout) Settle() error {
	if p.done {
		return ErrPayoutFinished
	}
	p.done = true
	p.e.inFlight.Sub(p.e.inFlight, new(big.Int).SetUint64(p.Amount))
	return nil
}

// Abort reverses the payout's bookkeeping after a failed transfer.
func (p *Payout) Abort() error {
	if p.done {
		return ErrPayoutFinished
	}
	p.done = true
	e := p.e
	a := e.account(p.To)
	a.withheld += p.fromWithheld
	a.correction.Add(a.correction, unitsToScaled(p.fromPending))
	a.released -= p.Amount

	amt := new(big.Int).SetUint64(p.Amount)
	e.totalReleased.Sub(e.totalReleased, amt)
	e.inFlight.Sub(e.inFlight, amt)
	return nil
}

// Execute sends the payout through gw and then settles it, or aborts it if
// the send fails. A zero payout settles without calling the gateway.
func (p *Payout) Execute(ctx context.Context, gw Gateway) error {
	if p.Amount > 0 {
		if err := gw.Send(ctx, p.To, p.Amount); err != nil {
			if abortErr := p.Abort(); abortErr != nil {
				return fmt.Errorf("revshare: send failed: %w (abort: %v)", err, abortErr)
			}
			return fmt.Errorf("revshare: send %d to %s: %w", p.Amount, p.To, err)
		}
	}
	return p.Settle()
}
