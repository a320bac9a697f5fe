// Command dividends operates dividend-paying share instances persisted in a
// local data directory.
//
// Usage:
//
//	dividends [flags] <command> [args]
//
// Commands:
//
//	init                         register the configured instance
//	keygen                       create the encrypted keyring in the data directory
//	status                       show supply, holders and what each is owed
//	mint <to> <amount>           mint shares (caller is --caller)
//	burn <from> <amount>         burn shares (caller is --caller)
//	transfer <from> <to> <n>     move shares
//	release <to> [amount]        pay dividends; without amount pays all owed
//	audit                        check the books against the gateway
//	serve                        sync and checkpoint periodically, export metrics
//
// Holder and payee arguments accept an address or a paymail handle.
// Node credentials come from flags, then DIVIDENDS_RPC_* variables, then
// network presets. Native payout keys are derived from the keyring, which is
// unlocked with DIVIDENDS_PASSWORD; DIVIDENDS_POOL_KEY and DIVIDENDS_FEE_KEY
// override them with hex keys. A .env file in the working directory is
// loaded first if present.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/bitfsorg/libdividends-go/config"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	flags := flag.NewFlagSet("dividends", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: dividends [flags] <command> [args]")
		fmt.Fprintln(stderr, "Commands: init keygen status mint burn transfer release audit serve")
		fmt.Fprintln(stderr, "Flags:")
		flags.PrintDefaults()
	}
	dataDirFlag := flags.String("datadir", config.DefaultDataDir(), "data directory holding config and state")
	networkFlag := flags.String("network", "", "override network (mainnet, testnet, regtest)")
	logLevelFlag := flags.String("log-level", "", "override log level (debug, info, warn, error)")
	rpcURLFlag := flags.String("rpc-url", "", "node RPC URL (or set DIVIDENDS_RPC_URL env var)")
	rpcUserFlag := flags.String("rpc-user", "", "node RPC user (or set DIVIDENDS_RPC_USER env var)")
	rpcPassFlag := flags.String("rpc-pass", "", "node RPC password (or set DIVIDENDS_RPC_PASS env var)")
	dnsFlag := flags.String("dns-upstream", "", "resolve paymail handles through this DNSSEC-validating resolver (host:port)")
	callerFlag := flags.String("caller", "", "address acting as minter for mint and burn")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	cfg, err := loadConfig(*dataDirFlag)
	if err != nil {
		return err
	}
	if *networkFlag != "" {
		cfg.Network = *networkFlag
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, cmdArgs := flags.Arg(0), flags.Args()[1:]
	if cmd == "keygen" {
		return cmdKeygen(os.Stdout, cfg)
	}

	a, err := newApp(cfg, cliFlags{rpcURL: *rpcURLFlag, rpcUser: *rpcUserFlag, rpcPass: *rpcPassFlag, dnsUpstream: *dnsFlag})
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "init":
		return a.cmdInit(ctx)
	case "status":
		return a.cmdStatus(ctx, os.Stdout)
	case "mint", "burn":
		return a.cmdSupply(ctx, cmd, *callerFlag, cmdArgs)
	case "transfer":
		return a.cmdTransfer(ctx, cmdArgs)
	case "release":
		return a.cmdRelease(ctx, cmdArgs)
	case "audit":
		return a.cmdAudit(ctx)
	case "serve":
		return a.cmdServe(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads the config file in dataDir, falling back to defaults
// when none exists yet.
func loadConfig(dataDir string) (config.Config, error) {
	cfg, err := config.LoadConfig(config.ConfigPath(dataDir))
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.DefaultConfig()
		err = nil
	}
	if err != nil {
		return cfg, err
	}
	cfg.DataDir = dataDir
	return cfg, nil
}
