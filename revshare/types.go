package revshare

import (
	"context"
	"math"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// ScaleBits is the number of fractional bits carried by the accumulator.
const ScaleBits = 128

// Scale is the fixed-point factor applied to the dividend-per-share accumulator.
var Scale = new(big.Int).Lsh(big.NewInt(1), ScaleBits)

// Shares is the read side of the share ledger.
type Shares interface {
	BalanceOf(owner ledger.Address) uint64
	TotalSupply() uint64
}

// Gateway holds the payment asset being distributed.
type Gateway interface {
	// Balance returns the amount of the payment asset currently held.
	Balance(ctx context.Context) (uint64, error)
	// Send moves amount of the payment asset to the given address. It may
	// call back into the caller.
	Send(ctx context.Context, to ledger.Address, amount uint64) error
}

// AccountState is the dividend bookkeeping kept for one account.
type AccountState struct {
	Address    ledger.Address
	Correction *big.Int // signed, in Scale units
	Withheld   uint64
	Released   uint64
	EverHeld   bool
}

// State is a serialisable copy of an engine's bookkeeping. Accounts are
// ordered by address.
type State struct {
	Accumulator    *big.Int
	TotalAccounted *big.Int
	TotalReleased  *big.Int
	Accounts       []AccountState
}

// FindAccount returns the index and entry for the given address, or -1 if not found.
func (s *State) FindAccount(addr ledger.Address) (int, *AccountState) {
	for i := range s.Accounts {
		if s.Accounts[i].Address == addr {
			return i, &s.Accounts[i]
		}
	}
	return -1, nil
}

// Distribution is one holder's share of a projected deposit.
type Distribution struct {
	Address ledger.Address
	Amount  uint64
}

func toUint64(x *big.Int) uint64 {
	switch {
	case x.Sign() <= 0:
		return 0
	case x.IsUint64():
		return x.Uint64()
	default:
		return math.MaxUint64
	}
}
