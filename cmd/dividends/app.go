package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/libdividends-go/config"
	"github.com/bitfsorg/libdividends-go/dividends"
	"github.com/bitfsorg/libdividends-go/gateway"
	"github.com/bitfsorg/libdividends-go/internal/logger"
	"github.com/bitfsorg/libdividends-go/keyring"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/network"
	"github.com/bitfsorg/libdividends-go/paymail"
	"github.com/bitfsorg/libdividends-go/store"
)

// Environment variables consulted for native payout keys. Hex keys take
// precedence over the keyring in the data directory.
const (
	EnvPoolKey  = "DIVIDENDS_POOL_KEY"
	EnvFeeKey   = "DIVIDENDS_FEE_KEY"
	EnvPassword = "DIVIDENDS_PASSWORD"
	EnvMnemonic = "DIVIDENDS_MNEMONIC"
)

// cliFlags carries the connection flags not kept in the config file.
type cliFlags struct {
	rpcURL, rpcUser, rpcPass string
	dnsUpstream              string
}

type app struct {
	cfg     config.Config
	log     *slog.Logger
	logFile *os.File
	st      *store.BoltStore
	flags   cliFlags
	clock   clockwork.Clock

	ring   *keyring.Keyring
	native *gateway.Native
}

func newApp(cfg config.Config, flags cliFlags) (*app, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, flags: flags, clock: clockwork.NewRealClock()}

	out := os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		out = f
	}
	a.log = logger.New(out, level)

	st, err := store.OpenBoltStore(config.DBPath(cfg.DataDir), store.WithClock(a.clock))
	if err != nil {
		a.close()
		return nil, err
	}
	a.st = st
	return a, nil
}

func (a *app) close() {
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn("failed to close store", "error", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func (a *app) kind() store.PaymentKind {
	if a.cfg.Payment == config.PaymentToken {
		return store.KindToken
	}
	return store.KindNative
}

// address is the configured instance's address.
func (a *app) address() ledger.Address {
	return dividends.DeriveAddress(a.kind(), a.cfg.Name, a.cfg.Symbol)
}

func (a *app) options() []dividends.Option {
	return []dividends.Option{dividends.WithLogger(a.log), dividends.WithClock(a.clock)}
}

// initOptions adds the settings that are fixed when an instance is created.
func (a *app) initOptions() []dividends.Option {
	opts := append(a.options(), dividends.WithDecimals(a.cfg.Decimals))
	if a.cfg.Minter != "" {
		// ValidateConfig has already parsed it.
		opts = append(opts, dividends.WithMinter(ledger.MustParseAddress(a.cfg.Minter)))
	}
	return opts
}

// nativeGateway connects to the node and loads the keys of the native
// instance at addr.
func (a *app) nativeGateway(addr ledger.Address) (*gateway.Native, error) {
	if a.native != nil {
		return a.native, nil
	}
	rpcCfg, err := network.ResolveConfig(&network.RPCConfig{URL: a.flags.rpcURL, User: a.flags.rpcUser, Password: a.flags.rpcPass},
		map[string]string{
			network.EnvRPCURL:  os.Getenv(network.EnvRPCURL),
			network.EnvRPCUser: os.Getenv(network.EnvRPCUser),
			network.EnvRPCPass: os.Getenv(network.EnvRPCPass),
		}, a.cfg.Network)
	if err != nil {
		return nil, err
	}
	poolKey, err := a.key(EnvPoolKey, func(k *keyring.Keyring) (*ec.PrivateKey, error) { return k.PoolKey(addr) })
	if err != nil {
		return nil, err
	}
	feeKey, err := a.key(EnvFeeKey, (*keyring.Keyring).FeeKey)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.NewNative(network.NewRPCClient(*rpcCfg), poolKey, feeKey,
		gateway.WithMainnet(a.mainnet()),
		gateway.WithFeeRate(a.cfg.FeeRate),
		gateway.WithNativeLogger(a.log),
	)
	if err != nil {
		return nil, err
	}
	a.native = gw
	return gw, nil
}

func (a *app) mainnet() bool { return a.cfg.Network == "mainnet" }

// key reads a hex key from env, falling back to the keyring.
func (a *app) key(env string, derive func(*keyring.Keyring) (*ec.PrivateKey, error)) (*ec.PrivateKey, error) {
	if os.Getenv(env) != "" {
		return keyFromEnv(env)
	}
	if a.ring == nil {
		ring, err := keyring.Open(a.cfg.DataDir, os.Getenv(EnvPassword), a.mainnet())
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no keyring in %s: run keygen or set %s", a.cfg.DataDir, env)
		}
		if err != nil {
			return nil, err
		}
		a.ring = ring
	}
	return derive(a.ring)
}

// open restores the configured instance. For token payment the asset must
// be a native instance in the same data directory; it is restored too and
// returned first so callers checkpoint both.
func (a *app) open() (*dividends.Token, []*dividends.Token, error) {
	if a.kind() == store.KindNative {
		gw, err := a.nativeGateway(a.address())
		if err != nil {
			return nil, nil, err
		}
		tok, err := dividends.RestoreNative(a.st, a.address(), gw, a.options()...)
		if err != nil {
			return nil, nil, err
		}
		return tok, []*dividends.Token{tok}, nil
	}

	reg, asset, err := a.assetRegistry()
	if err != nil {
		return nil, nil, err
	}
	tok, err := dividends.RestoreToken(a.st, a.address(), reg, a.options()...)
	if err != nil {
		return nil, nil, err
	}
	return tok, []*dividends.Token{asset, tok}, nil
}

func (a *app) assetRegistry() (*gateway.Registry, *dividends.Token, error) {
	assetAddr := ledger.MustParseAddress(a.cfg.Asset)
	gw, err := a.nativeGateway(assetAddr)
	if err != nil {
		return nil, nil, err
	}
	asset, err := dividends.RestoreNative(a.st, assetAddr, gw, a.options()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: payment asset %s is not an instance in %s", gateway.ErrNotAContract, assetAddr, a.cfg.DataDir)
	}
	if err != nil {
		return nil, nil, err
	}
	reg := gateway.NewRegistry()
	if err := reg.Register(assetAddr, asset); err != nil {
		return nil, nil, err
	}
	return reg, asset, nil
}

// save checkpoints every instance touched by a command.
func (a *app) save(toks []*dividends.Token) error {
	for _, tok := range toks {
		if _, err := tok.Checkpoint(a.st); err != nil {
			return fmt.Errorf("checkpoint %s: %w", tok.Symbol(), err)
		}
	}
	return nil
}

// payee parses an address or resolves a paymail handle.
func (a *app) payee(ctx context.Context, s string) (ledger.Address, error) {
	if !paymail.IsHandle(s) {
		return ledger.ParseAddress(s)
	}
	opts := []paymail.Option{paymail.WithLogger(a.log)}
	if a.flags.dnsUpstream != "" {
		opts = append(opts, paymail.WithDNSResolver(paymail.NewDNSSECResolver(a.flags.dnsUpstream)))
	}
	return paymail.NewClient(opts...).Resolve(ctx, s)
}

func keyFromEnv(name string) (*ec.PrivateKey, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes of hex", name)
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	return priv, nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return n, nil
}
