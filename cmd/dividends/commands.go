package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libdividends-go/config"
	"github.com/bitfsorg/libdividends-go/dividends"
	"github.com/bitfsorg/libdividends-go/internal/httpapi"
	"github.com/bitfsorg/libdividends-go/keyring"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/store"
)

// cmdKeygen creates the keyring in the data directory from the mnemonic in
// DIVIDENDS_MNEMONIC, or from a fresh one which is printed once.
func cmdKeygen(w io.Writer, cfg config.Config) error {
	password := os.Getenv(EnvPassword)
	if password == "" {
		return fmt.Errorf("%s must be set to encrypt the keyring", EnvPassword)
	}
	mnemonic := strings.TrimSpace(os.Getenv(EnvMnemonic))
	generated := mnemonic == ""
	if generated {
		var err error
		if mnemonic, err = keyring.GenerateMnemonic(keyring.Mnemonic24Words); err != nil {
			return err
		}
	}
	if err := keyring.Create(cfg.DataDir, mnemonic, password); err != nil {
		return err
	}

	ring, err := keyring.Open(cfg.DataDir, password, cfg.Network == "mainnet")
	if err != nil {
		return err
	}
	fee, err := ring.FeeKey()
	if err != nil {
		return err
	}
	feeAddr, err := ledger.AddressFromPubKeyHash(fee.PubKey().Hash())
	if err != nil {
		return err
	}

	if generated {
		fmt.Fprintf(w, "mnemonic: %s\n", mnemonic)
	}
	fmt.Fprintf(w, "keyring:  %s\nfee:      %s\n", filepath.Join(cfg.DataDir, keyring.FileName), feeAddr)
	return nil
}

// cmdInit writes the config file if missing and registers a new instance.
func (a *app) cmdInit(ctx context.Context) error {
	path := config.ConfigPath(a.cfg.DataDir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.SaveConfig(path, a.cfg); err != nil {
			return err
		}
		a.log.Info("config written", "path", path)
	}

	addr := a.address()
	if _, err := a.st.GetInstance(addr); err == nil {
		return fmt.Errorf("instance %s (%s) already exists", a.cfg.Symbol, addr)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var (
		tok *dividends.Token
		err error
	)
	switch a.kind() {
	case store.KindNative:
		gw, gerr := a.nativeGateway(addr)
		if gerr != nil {
			return gerr
		}
		if err := gw.Watch(ctx); err != nil {
			return err
		}
		tok, err = dividends.NewNative(a.cfg.Name, a.cfg.Symbol, gw, a.initOptions()...)
	default:
		reg, asset, rerr := a.assetRegistry()
		if rerr != nil {
			return rerr
		}
		tok, err = dividends.NewToken(a.cfg.Name, a.cfg.Symbol, reg, asset.Address(), a.initOptions()...)
	}
	if err != nil {
		return err
	}
	if err := a.save([]*dividends.Token{tok}); err != nil {
		return err
	}

	fmt.Printf("instance: %s\n", tok.Address())
	if tok.Kind() == store.KindNative {
		fmt.Printf("pool:     %s\nfee:      %s\n", a.native.PoolAddress(), a.native.FeeAddress())
	} else {
		fmt.Printf("asset:    %s\n", tok.PaymentAsset())
	}
	return nil
}

func (a *app) cmdStatus(ctx context.Context, w io.Writer) error {
	tok, _, err := a.open()
	if err != nil {
		return err
	}
	folded, err := tok.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s (%s) at %s, paid in %s\n", tok.Name(), tok.Symbol(), tok.Address(), tok.Kind())
	fmt.Fprintf(w, "supply %d, accounted %s, released %d, newly folded %d\n\n",
		tok.TotalSupply(), tok.TotalAccounted(), tok.TotalReleased(), folded)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOLDER\tSHARES\tPENDING\tWITHHELD\tRELEASED")
	for _, h := range tok.Holders() {
		pending, err := tok.PendingPayment(ctx, h.Address)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", h.Address, h.Balance, pending, tok.Withheld(h.Address), tok.Released(h.Address))
	}
	return tw.Flush()
}

// cmdSupply handles mint and burn.
func (a *app) cmdSupply(ctx context.Context, cmd, caller string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s <address> <amount>", cmd)
	}
	callerAddr, err := ledger.ParseAddress(caller)
	if err != nil {
		return fmt.Errorf("--caller: %w", err)
	}
	target, err := a.payee(ctx, args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	tok, toks, err := a.open()
	if err != nil {
		return err
	}
	if cmd == "mint" {
		err = tok.Mint(ctx, callerAddr, target, amount)
	} else {
		err = tok.Burn(ctx, callerAddr, target, amount)
	}
	if err != nil {
		return err
	}
	return a.save(toks)
}

func (a *app) cmdTransfer(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: transfer <from> <to> <amount>")
	}
	from, err := a.payee(ctx, args[0])
	if err != nil {
		return err
	}
	to, err := a.payee(ctx, args[1])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[2])
	if err != nil {
		return err
	}

	tok, toks, err := a.open()
	if err != nil {
		return err
	}
	if err := tok.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	return a.save(toks)
}

// cmdRelease pays the given amount to a holder, or everything owed when no
// amount is given.
func (a *app) cmdRelease(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: release <to> [amount]")
	}
	to, err := a.payee(ctx, args[0])
	if err != nil {
		return err
	}
	tok, toks, err := a.open()
	if err != nil {
		return err
	}

	var paid uint64
	if len(args) == 2 {
		if paid, err = parseAmount(args[1]); err != nil {
			return err
		}
		err = tok.Release(ctx, to, paid)
	} else {
		paid, err = tok.ReleaseAll(ctx, to)
	}
	if err != nil {
		return err
	}
	if err := a.save(toks); err != nil {
		return err
	}
	fmt.Printf("released %d to %s\n", paid, to)
	if a.native != nil && tok.Kind() == store.KindNative && paid > 0 {
		fmt.Printf("txid %s\n", a.native.LastTxID())
	}
	return nil
}

func (a *app) cmdAudit(ctx context.Context) error {
	_, toks, err := a.open()
	if err != nil {
		return err
	}
	for _, tok := range toks {
		if err := tok.Audit(ctx); err != nil {
			return fmt.Errorf("audit %s: %w", tok.Symbol(), err)
		}
		fmt.Printf("%s ok\n", tok.Symbol())
	}
	return nil
}

// cmdServe syncs and checkpoints on every interval until ctx is cancelled,
// serving metrics and the read API alongside when an address is configured.
func (a *app) cmdServe(ctx context.Context) error {
	_, toks, err := a.open()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		listener, err := net.Listen("tcp", a.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen on metrics address: %w", err)
		}
		srv := &http.Server{
			Handler:           httpapi.New(toks, a.log, httpapi.WithClock(a.clock)).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		a.log.Info("http server listening", "address", listener.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.tickLoop(ctx, toks)
	})
	return g.Wait()
}

func (a *app) tickLoop(ctx context.Context, toks []*dividends.Token) error {
	ticker := a.clock.NewTicker(a.cfg.CheckpointInterval)
	defer ticker.Stop()
	a.log.Info("serving", "instances", len(toks), "interval", a.cfg.CheckpointInterval)

	for {
		select {
		case <-ctx.Done():
			return a.save(toks)
		case <-ticker.Chan():
			a.tick(ctx, toks)
		}
	}
}

// tick logs failures and carries on with the next instance.
func (a *app) tick(ctx context.Context, toks []*dividends.Token) {
	for _, tok := range toks {
		if _, err := tok.Sync(ctx); err != nil {
			a.log.Warn("sync failed", "symbol", tok.Symbol(), "error", err)
			continue
		}
		if _, err := tok.Checkpoint(a.st); err != nil {
			a.log.Warn("checkpoint failed", "symbol", tok.Symbol(), "error", err)
		}
	}
}
