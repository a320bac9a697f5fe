package ledger

import "errors"

var (
	// ErrZeroAddress indicates the zero address was used as a holder, spender or recipient.
	ErrZeroAddress = errors.New("ledger: zero address")

	// ErrInvalidAddress indicates an address string could not be decoded.
	ErrInvalidAddress = errors.New("ledger: invalid address")

	// ErrInsufficientBalance indicates a transfer or burn exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("ledger: amount exceeds balance")

	// ErrInsufficientAllowance indicates a delegated transfer exceeds the approved allowance.
	ErrInsufficientAllowance = errors.New("ledger: amount exceeds allowance")

	// ErrSupplyOverflow indicates a mint would overflow the total supply.
	ErrSupplyOverflow = errors.New("ledger: total supply overflow")

	// ErrInvalidSnapshot indicates a snapshot violates the conservation invariant.
	ErrInvalidSnapshot = errors.New("ledger: invalid snapshot")
)
