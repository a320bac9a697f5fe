// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"regtest\")")

	// ErrInvalidListenAddr indicates the metrics listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidPayment indicates the payment kind is not recognized.
	ErrInvalidPayment = errors.New("config: invalid payment (must be \"native\" or \"token\")")

	// ErrInvalidAddress indicates a minter or asset address does not parse.
	ErrInvalidAddress = errors.New("config: invalid address")

	// ErrEmptySymbol indicates the token has no name or symbol.
	ErrEmptySymbol = errors.New("config: token name and symbol must not be empty")

	// ErrInvalidInterval indicates a non-positive checkpoint interval.
	ErrInvalidInterval = errors.New("config: checkpoint interval must be positive")
)
