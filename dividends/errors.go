package dividends

import "errors"

var (
	// ErrSelfDistribution indicates a token-denominated instance was asked
	// to pay dividends in its own shares.
	ErrSelfDistribution = errors.New("dividends: cannot distribute own shares")

	// ErrUnauthorized indicates the caller is not the configured minter.
	ErrUnauthorized = errors.New("dividends: caller is not the minter")

	// ErrKindMismatch indicates a stored instance uses a different payment kind.
	ErrKindMismatch = errors.New("dividends: payment kind mismatch")

	// ErrNilParam indicates a required parameter was nil.
	ErrNilParam = errors.New("dividends: required parameter is nil")
)
