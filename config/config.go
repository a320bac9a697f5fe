// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the dividends node configuration, a flat
// "key = value" file kept in the data directory.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Payment kinds.
const (
	PaymentNative = "native"
	PaymentToken  = "token"
)

// Config holds the node settings.
type Config struct {
	DataDir     string
	MetricsAddr string // serve: /metrics and the read API; empty disables
	Network     string
	LogLevel    string
	LogFile     string

	// Token instance.
	Name     string
	Symbol   string
	Decimals uint8
	Minter   string // address allowed to mint and burn; empty for none

	// Payment asset.
	Payment string // "native" or "token"
	Asset   string // payment token address when Payment is "token"
	FeeRate uint64 // sat/KB for native payouts

	// CheckpointInterval is how often the serve loop persists state.
	CheckpointInterval time.Duration
}

// DefaultDataDir returns ~/.dividends, or ./.dividends if the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dividends"
	}
	return filepath.Join(home, ".dividends")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:            DefaultDataDir(),
		MetricsAddr:        ":9464",
		Network:            "mainnet",
		LogLevel:           "info",
		Name:               "Dividend Shares",
		Symbol:             "DIV",
		Payment:            PaymentNative,
		FeeRate:            1,
		CheckpointInterval: time.Minute,
	}
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// DBPath returns the state database path inside dataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "dividends.db")
}

// LoadConfig reads the file at path on top of DefaultConfig. Blank lines
// and lines starting with '#' are skipped; unknown keys are ignored so that
// older binaries can read newer files.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits on the first '='.
func parseKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func (c *Config) set(key, value string) error {
	switch key {
	case "datadir":
		c.DataDir = value
	case "metrics":
		c.MetricsAddr = value
	case "network":
		c.Network = value
	case "loglevel":
		c.LogLevel = value
	case "logfile":
		c.LogFile = value
	case "name":
		c.Name = value
	case "symbol":
		c.Symbol = value
	case "decimals":
		d, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("decimals: %w", err)
		}
		c.Decimals = uint8(d)
	case "minter":
		c.Minter = value
	case "payment":
		c.Payment = value
	case "asset":
		c.Asset = value
	case "feerate":
		r, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("feerate: %w", err)
		}
		c.FeeRate = r
	case "checkpoint":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		c.CheckpointInterval = d
	}
	return nil
}

// SaveConfig writes cfg to path, creating the parent directory if needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Dividends Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "metrics = %s\n", cfg.MetricsAddr)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	b.WriteString("\n# Token\n")
	fmt.Fprintf(&b, "name = %s\n", cfg.Name)
	fmt.Fprintf(&b, "symbol = %s\n", cfg.Symbol)
	fmt.Fprintf(&b, "decimals = %d\n", cfg.Decimals)
	fmt.Fprintf(&b, "minter = %s\n", cfg.Minter)
	b.WriteString("\n# Payment asset\n")
	fmt.Fprintf(&b, "payment = %s\n", cfg.Payment)
	fmt.Fprintf(&b, "asset = %s\n", cfg.Asset)
	fmt.Fprintf(&b, "feerate = %d\n", cfg.FeeRate)
	fmt.Fprintf(&b, "checkpoint = %s\n", cfg.CheckpointInterval)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
