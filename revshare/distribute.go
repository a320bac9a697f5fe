package revshare

import (
	"fmt"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// ProjectDeposit calculates how a deposit would raise each holder's pending
// payment if it were folded with the given holdings. Every share is floored;
// the returned residual is the part of the deposit that no holder can ever
// claim.
func ProjectDeposit(amount uint64, holders []ledger.Holding, totalShares uint64) ([]Distribution, uint64, error) {
	if len(holders) == 0 {
		return nil, 0, ErrNoEntries
	}
	if totalShares == 0 {
		return nil, 0, ErrZeroTotalShares
	}

	var held uint64
	for _, h := range holders {
		held += h.Balance
		if held < h.Balance || held > totalShares {
			return nil, 0, fmt.Errorf("%w: holdings exceed total %d", ErrShareConservationViolation, totalShares)
		}
	}

	d := new(big.Int).SetUint64(amount)
	total := new(big.Int).SetUint64(totalShares)
	distributions := make([]Distribution, len(holders))
	var distributed uint64

	for i, h := range holders {
		share := new(big.Int).Mul(d, new(big.Int).SetUint64(h.Balance))
		share.Quo(share, total)
		distributions[i] = Distribution{Address: h.Address, Amount: toUint64(share)}
		distributed += distributions[i].Amount
	}

	return distributions, amount - distributed, nil
}
