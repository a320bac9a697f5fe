// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if cfg.Name == "" || cfg.Symbol == "" {
		return ErrEmptySymbol
	}

	if cfg.Minter != "" {
		if _, err := ledger.ParseAddress(cfg.Minter); err != nil {
			return fmt.Errorf("%w: minter: %w", ErrInvalidAddress, err)
		}
	}

	switch cfg.Payment {
	case PaymentNative:
	case PaymentToken:
		if _, err := ledger.ParseAddress(cfg.Asset); err != nil {
			return fmt.Errorf("%w: asset: %w", ErrInvalidAddress, err)
		}
	default:
		return ErrInvalidPayment
	}

	if cfg.CheckpointInterval <= 0 {
		return ErrInvalidInterval
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
