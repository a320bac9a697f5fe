package ledger

import (
	"fmt"
	"math"
)

// Snapshot is a point-in-time copy of a ledger's state. Holders are kept in
// address order so equal ledgers produce equal snapshots.
type Snapshot struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Holders    []Holding
	Allowances []Allowance
}

// Allowance is one owner/spender approval.
type Allowance struct {
	Owner   Address
	Spender Address
	Amount  uint64
}

// Snapshot captures balances and allowances. Hooks and listeners are not part
// of the snapshot.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Name:     l.name,
		Symbol:   l.symbol,
		Decimals: l.decimals,
		Holders:  l.Holders(),
	}
	for owner, m := range l.allowances {
		for spender, amt := range m {
			if amt == 0 {
				continue
			}
			s.Allowances = append(s.Allowances, Allowance{Owner: owner, Spender: spender, Amount: amt})
		}
	}
	return s
}

// Restore builds a ledger from a snapshot. Total supply is recomputed from
// the holder balances.
func Restore(s Snapshot) (*Ledger, error) {
	l := New(s.Name, s.Symbol, s.Decimals)
	for _, h := range s.Holders {
		if h.Address.IsZero() {
			return nil, fmt.Errorf("%w: zero address holder", ErrInvalidSnapshot)
		}
		if _, dup := l.balances[h.Address]; dup {
			return nil, fmt.Errorf("%w: duplicate holder %s", ErrInvalidSnapshot, h.Address)
		}
		if h.Balance == 0 {
			continue
		}
		if l.supply > math.MaxUint64-h.Balance {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, ErrSupplyOverflow)
		}
		l.balances[h.Address] = h.Balance
		l.supply += h.Balance
	}
	for _, a := range s.Allowances {
		if err := l.Approve(a.Owner, a.Spender, a.Amount); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	}
	return l, nil
}
