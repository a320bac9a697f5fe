package gateway

import "errors"

var (
	// ErrNotAContract indicates the payment asset address has no token deployed at it.
	ErrNotAContract = errors.New("gateway: payment asset is not a contract")

	// ErrAssetExists indicates a token is already registered at the address.
	ErrAssetExists = errors.New("gateway: asset already registered")

	// ErrInsufficientFunds indicates the gateway holds less than the requested payout.
	ErrInsufficientFunds = errors.New("gateway: insufficient funds")

	// ErrInsufficientFee indicates the fee wallet cannot cover the transaction fee.
	ErrInsufficientFee = errors.New("gateway: insufficient fee funds")

	// ErrNilParam indicates a required parameter was nil.
	ErrNilParam = errors.New("gateway: required parameter is nil")

	// ErrBuildTx indicates the payout transaction could not be built or signed.
	ErrBuildTx = errors.New("gateway: failed to build payout transaction")
)
