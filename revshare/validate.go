package revshare

import (
	"fmt"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// ValidateShareConservation checks that holder balances add up to the total supply.
func ValidateShareConservation(holders []ledger.Holding, totalSupply uint64) error {
	sum := new(big.Int)
	for _, h := range holders {
		sum.Add(sum, new(big.Int).SetUint64(h.Balance))
	}
	if sum.Cmp(new(big.Int).SetUint64(totalSupply)) != 0 {
		return fmt.Errorf("%w: holders=%s supply=%d", ErrShareConservationViolation, sum, totalSupply)
	}
	return nil
}

// ValidateConservation checks the released totals against the per-account
// records and that the accounted funds never exceed what the gateway holds
// plus what it has paid out.
func ValidateConservation(s *State, gatewayBalance uint64) error {
	released := new(big.Int)
	for _, a := range s.Accounts {
		released.Add(released, new(big.Int).SetUint64(a.Released))
	}
	if released.Cmp(s.TotalReleased) != 0 {
		return fmt.Errorf("%w: account releases %s != total released %s",
			ErrAccountingViolation, released, s.TotalReleased)
	}

	ceiling := new(big.Int).SetUint64(gatewayBalance)
	ceiling.Add(ceiling, s.TotalReleased)
	if s.TotalAccounted.Cmp(ceiling) > 0 {
		return fmt.Errorf("%w: accounted %s exceeds balance %d + released %s",
			ErrAccountingViolation, s.TotalAccounted, gatewayBalance, s.TotalReleased)
	}
	return nil
}

// ValidateEntitlements checks that every holder is tracked, that no
// accumulator-derived claim is negative, and that all outstanding claims
// together never exceed the accounted funds not yet released.
func ValidateEntitlements(s *State, holders []ledger.Holding) error {
	balances := make(map[ledger.Address]uint64, len(holders))
	for _, h := range holders {
		balances[h.Address] = h.Balance
		if _, a := s.FindAccount(h.Address); a == nil && s.Accumulator.Sign() != 0 {
			return fmt.Errorf("%w: holder %s has no account state", ErrAccountingViolation, h.Address)
		}
	}

	owed := new(big.Int)
	for _, a := range s.Accounts {
		x := new(big.Int).Mul(s.Accumulator, new(big.Int).SetUint64(balances[a.Address]))
		x.Add(x, a.Correction)
		if x.Sign() < 0 {
			return fmt.Errorf("%w: negative entitlement for %s", ErrAccountingViolation, a.Address)
		}
		owed.Add(owed, x.Quo(x, Scale))
		owed.Add(owed, new(big.Int).SetUint64(a.Withheld))
	}

	unreleased := new(big.Int).Sub(s.TotalAccounted, s.TotalReleased)
	if owed.Cmp(unreleased) > 0 {
		return fmt.Errorf("%w: owed %s exceeds unreleased %s", ErrAccountingViolation, owed, unreleased)
	}
	return nil
}
