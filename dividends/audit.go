package dividends

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libdividends-go/revshare"
)

// Audit checks the instance's bookkeeping against the share ledger and the
// gateway balance. It fails with revshare.ErrPayoutInFlight while a payout
// is being sent.
func (t *Token) Audit(ctx context.Context) error {
	t.lock()
	defer t.unlock()

	state, err := t.eng.State()
	if err != nil {
		return err
	}
	balance, err := t.gw.Balance(ctx)
	if err != nil {
		return fmt.Errorf("dividends: reading gateway balance: %w", err)
	}
	holders := t.led.Holders()
	if err := revshare.ValidateShareConservation(holders, t.led.TotalSupply()); err != nil {
		return err
	}
	if err := revshare.ValidateConservation(state, balance); err != nil {
		return err
	}
	return revshare.ValidateEntitlements(state, holders)
}
