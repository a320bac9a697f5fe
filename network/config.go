package network

import (
	"fmt"
	"time"
)

// Environment variables consulted by ResolveConfig.
const (
	EnvRPCURL  = "DIVIDENDS_RPC_URL"
	EnvRPCUser = "DIVIDENDS_RPC_USER"
	EnvRPCPass = "DIVIDENDS_RPC_PASS"
)

// RPCConfig holds the connection parameters for a BSV node's JSON-RPC interface.
type RPCConfig struct {
	URL      string        `json:"url"`
	User     string        `json:"user"`
	Password string        `json:"password"`
	Network  string        `json:"network"`
	Timeout  time.Duration `json:"timeout"`
	// Rescan makes ImportAddress rescan the chain for existing outputs.
	Rescan bool `json:"rescan"`
}

// NetworkPresets contains default RPC configurations for known networks.
// Mainnet is intentionally omitted to require explicit configuration.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18332", User: "dividends", Password: "dividends", Rescan: true},
	"testnet": {URL: "http://localhost:18333", User: "dividends", Password: "dividends", Rescan: true},
}

// ResolveConfig merges RPC configuration from three sources with decreasing priority:
//  1. CLI flags
//  2. Environment variables (DIVIDENDS_RPC_URL, DIVIDENDS_RPC_USER, DIVIDENDS_RPC_PASS)
//  3. Network presets (regtest/testnet only)
func ResolveConfig(flags *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if v := env[EnvRPCURL]; v != "" {
		result.URL = v
	}
	if v := env[EnvRPCUser]; v != "" {
		result.User = v
	}
	if v := env[EnvRPCPass]; v != "" {
		result.Password = v
	}

	if flags != nil {
		if flags.URL != "" {
			result.URL = flags.URL
		}
		if flags.User != "" {
			result.User = flags.User
		}
		if flags.Password != "" {
			result.Password = flags.Password
		}
		if flags.Timeout > 0 {
			result.Timeout = flags.Timeout
		}
		if flags.Rescan {
			result.Rescan = true
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("network: %s requires explicit RPC configuration (set --rpc-url or %s)", network, EnvRPCURL)
	}

	return &result, nil
}
