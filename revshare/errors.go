package revshare

import "errors"

var (
	// ErrInsufficientShares indicates a burn or transfer exceeds the holder's share balance.
	ErrInsufficientShares = errors.New("revshare: insufficient shares")

	// ErrNoShares indicates a release for an account that never held shares
	// and has nothing withheld.
	ErrNoShares = errors.New("revshare: account has no shares")

	// ErrAmountExceedsOwed indicates a release larger than the amount currently owed.
	ErrAmountExceedsOwed = errors.New("revshare: amount requested exceeds amount owed")

	// ErrAmountExceedsWithheld indicates a withheld settlement larger than the withheld balance.
	ErrAmountExceedsWithheld = errors.New("revshare: amount requested exceeds amount withheld")

	// ErrNothingOwed indicates a full release for an account that is owed nothing.
	ErrNothingOwed = errors.New("revshare: account is not due payment")

	// ErrPayoutInFlight indicates state was requested while a payout was pending settlement.
	ErrPayoutInFlight = errors.New("revshare: payout in flight")

	// ErrPayoutFinished indicates Settle or Abort was called twice on the same payout.
	ErrPayoutFinished = errors.New("revshare: payout already finished")

	// ErrInvalidStateData indicates an encoded engine state is malformed.
	ErrInvalidStateData = errors.New("revshare: invalid state data")

	// ErrShareConservationViolation indicates share balances do not add up to the total supply.
	ErrShareConservationViolation = errors.New("revshare: share conservation violated")

	// ErrAccountingViolation indicates the dividend bookkeeping is inconsistent.
	ErrAccountingViolation = errors.New("revshare: accounting invariant violated")

	// ErrNoEntries indicates a projection over no holders.
	ErrNoEntries = errors.New("revshare: no shareholder entries")

	// ErrZeroTotalShares indicates total shares is zero.
	ErrZeroTotalShares = errors.New("revshare: zero total shares")
)
