// Package revshare implements dynamic dividend accounting for transferable
// shares.
//
// A global accumulator M records the dividends earned per share since
// genesis, scaled by Scale. Each account carries a signed correction so that
//
//	pending(a) = (M * shares(a) + correction(a)) / Scale
//
// stays constant across mint, burn and transfer events that do not touch a.
// Deposits are never pushed to the engine. They are observed lazily by
// Synchronize, which folds any increase in the gateway balance into M
// proportionally to the share supply at that instant.
//
// The engine does no locking. Callers serialise every call, including the
// Settle or Abort that completes a Payout.
package revshare

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/bitfsorg/libdividends-go/ledger"
)

type account struct {
	correction *big.Int
	withheld   uint64
	released   uint64
	everHeld   bool
}

// Engine tracks dividend entitlements for a share ledger paid from a gateway.
type Engine struct {
	shares Shares
	gw     Gateway

	m              *big.Int
	totalAccounted *big.Int
	totalReleased  *big.Int
	inFlight       *big.Int

	accounts map[ledger.Address]*account
}

// NewEngine creates an engine with no history.
func NewEngine(shares Shares, gw Gateway) *Engine {
	return &Engine{
		shares:         shares,
		gw:             gw,
		m:              new(big.Int),
		totalAccounted: new(big.Int),
		totalReleased:  new(big.Int),
		inFlight:       new(big.Int),
		accounts:       make(map[ledger.Address]*account),
	}
}

func (e *Engine) account(addr ledger.Address) *account {
	a, ok := e.accounts[addr]
	if !ok {
		a = &account{correction: new(big.Int)}
		e.accounts[addr] = a
	}
	return a
}

// unaccounted returns B + totalReleased - inFlight - TotalAccounted.
func (e *Engine) unaccounted(balance uint64) *big.Int {
	u := new(big.Int).SetUint64(balance)
	u.Add(u, e.totalReleased)
	u.Sub(u, e.inFlight)
	return u.Sub(u, e.totalAccounted)
}

// Synchronize folds funds that arrived since the last call into the
// accumulator and returns the amount folded. Nothing is folded while the
// share supply is zero; such funds stay unaccounted until shares exist.
func (e *Engine) Synchronize(ctx context.Context) (uint64, error) {
	balance, err := e.gw.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("revshare: reading gateway balance: %w", err)
	}
	u := e.unaccounted(balance)
	supply := e.shares.TotalSupply()
	if u.Sign() <= 0 || supply == 0 {
		return 0, nil
	}
	// Rounded up: with supply * shares below Scale, every holder then reads
	// exactly floor(u * shares / supply) after the second division.
	s := new(big.Int).SetUint64(supply)
	inc := new(big.Int).Mul(u, Scale)
	inc.Add(inc, s)
	inc.Sub(inc, big.NewInt(1))
	inc.Quo(inc, s)
	e.m.Add(e.m, inc)
	e.totalAccounted.Add(e.totalAccounted, u)
	return toUint64(u), nil
}

// Unaccounted returns the funds held by the gateway that have not yet been
// folded into the accumulator.
func (e *Engine) Unaccounted(ctx context.Context) (uint64, error) {
	balance, err := e.gw.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("revshare: reading gateway balance: %w", err)
	}
	return toUint64(e.unaccounted(balance)), nil
}

// BeforeUpdate keeps entitlements stable across a share balance change. It
// must run before the ledger applies the change: mint has a zero from
// address, burn a zero to address.
func (e *Engine) BeforeUpdate(ctx context.Context, from, to ledger.Address, amount uint64) error {
	switch {
	case from.IsZero() && to.IsZero():
		return nil
	case from.IsZero():
		return e.onMint(ctx, to, amount)
	case to.IsZero():
		return e.onBurn(ctx, from, amount)
	default:
		return e.onTransfer(ctx, from, to, amount)
	}
}

var _ ledger.Hook = (*Engine)(nil)

func (e *Engine) requireShares(holder ledger.Address, amount uint64) error {
	if bal := e.shares.BalanceOf(holder); bal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientShares, holder, bal, amount)
	}
	return nil
}

func (e *Engine) onMint(ctx context.Context, to ledger.Address, amount uint64) error {
	if _, err := e.Synchronize(ctx); err != nil {
		return err
	}
	a := e.account(to)
	a.correction.Sub(a.correction, e.scaled(amount))
	if amount > 0 {
		a.everHeld = true
	}
	return nil
}

func (e *Engine) onBurn(ctx context.Context, from ledger.Address, amount uint64) error {
	if err := e.requireShares(from, amount); err != nil {
		return err
	}
	if _, err := e.Synchronize(ctx); err != nil {
		return err
	}
	a := e.account(from)
	a.correction.Add(a.correction, e.scaled(amount))
	return nil
}

// onTransfer moves the accumulator-derived claim of both parties into their
// withheld balances, so neither party's pending payment reads anything but
// zero right after the transfer and no earned dividend changes hands with
// the shares.
func (e *Engine) onTransfer(ctx context.Context, from, to ledger.Address, amount uint64) error {
	if err := e.requireShares(from, amount); err != nil {
		return err
	}
	if _, err := e.Synchronize(ctx); err != nil {
		return err
	}

	if from == to {
		a := e.account(from)
		e.fold(a, e.pendingOf(from, a))
		return nil
	}

	af, at := e.account(from), e.account(to)
	earnedFrom := e.pendingOf(from, af)
	earnedTo := e.pendingOf(to, at)

	moved := e.scaled(amount)
	af.correction.Add(af.correction, moved)
	at.correction.Sub(at.correction, moved)
	e.fold(af, earnedFrom)
	e.fold(at, earnedTo)
	if amount > 0 {
		at.everHeld = true
	}
	return nil
}

// fold moves earned out of the accumulator-derived figure into withheld.
func (e *Engine) fold(a *account, earned uint64) {
	if earned == 0 {
		return
	}
	a.correction.Sub(a.correction, unitsToScaled(earned))
	a.withheld += earned
}

// pendingOf returns (M * shares + correction) / Scale for the current balance.
func (e *Engine) pendingOf(addr ledger.Address, a *account) uint64 {
	if a == nil {
		a = e.accounts[addr]
	}
	x := e.scaled(e.shares.BalanceOf(addr))
	if a != nil {
		x.Add(x, a.correction)
	}
	if x.Sign() <= 0 {
		return 0
	}
	return toUint64(x.Quo(x, Scale))
}

// scaled returns M * amount.
func (e *Engine) scaled(amount uint64) *big.Int {
	return new(big.Int).Mul(e.m, new(big.Int).SetUint64(amount))
}

func unitsToScaled(amount uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(amount), Scale)
}

// State returns a copy of the engine's bookkeeping. It fails while a payout
// is awaiting settlement.
func (e *Engine) State() (*State, error) {
	if e.inFlight.Sign() != 0 {
		return nil, fmt.Errorf("%w: %s units", ErrPayoutInFlight, e.inFlight)
	}
	s := &State{
		Accumulator:    new(big.Int).Set(e.m),
		TotalAccounted: new(big.Int).Set(e.totalAccounted),
		TotalReleased:  new(big.Int).Set(e.totalReleased),
		Accounts:       make([]AccountState, 0, len(e.accounts)),
	}
	for addr, a := range e.accounts {
		s.Accounts = append(s.Accounts, AccountState{
			Address:    addr,
			Correction: new(big.Int).Set(a.correction),
			Withheld:   a.withheld,
			Released:   a.released,
			EverHeld:   a.everHeld,
		})
	}
	sort.Slice(s.Accounts, func(i, j int) bool {
		return s.Accounts[i].Address.Compare(s.Accounts[j].Address) < 0
	})
	return s, nil
}

// RestoreEngine rebuilds an engine from a State over the given ledger and gateway.
func RestoreEngine(s *State, shares Shares, gw Gateway) (*Engine, error) {
	if s == nil || s.Accumulator == nil || s.TotalAccounted == nil || s.TotalReleased == nil {
		return nil, fmt.Errorf("%w: missing totals", ErrInvalidStateData)
	}
	if s.Accumulator.Sign() < 0 || s.TotalAccounted.Sign() < 0 || s.TotalReleased.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative totals", ErrInvalidStateData)
	}
	e := NewEngine(shares, gw)
	e.m.Set(s.Accumulator)
	e.totalAccounted.Set(s.TotalAccounted)
	e.totalReleased.Set(s.TotalReleased)
	for _, as := range s.Accounts {
		if _, dup := e.accounts[as.Address]; dup {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrInvalidStateData, as.Address)
		}
		corr := new(big.Int)
		if as.Correction != nil {
			corr.Set(as.Correction)
		}
		e.accounts[as.Address] = &account{
			correction: corr,
			withheld:   as.Withheld,
			released:   as.Released,
			everHeld:   as.EverHeld,
		}
	}
	return e, nil
}
