// Package dividends issues transferable shares whose holders accrue a
// proportional claim on every payment the instance receives.
//
// An instance pairs a share ledger with a revenue-sharing engine and a
// payment gateway. Payments arrive silently: funds sent to the instance's
// address are noticed the next time anything reads or changes the
// accounting. Two variants exist, differing only in the gateway: NewNative
// pays out native currency, NewToken pays out a fungible token.
//
// Every state transition is serialised by one mutex. The gateway transfer
// of a release runs outside it, after the release has been recorded, so a
// payee that calls back into the instance while being paid sees its
// entitlement already reduced.
package dividends

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/hkdf"

	"github.com/bitfsorg/libdividends-go/gateway"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
	"github.com/bitfsorg/libdividends-go/store"
)

const addressSalt = "libdividends/instance-address/v1"

// Token is a dividend-paying share token instance.
type Token struct {
	mu sync.Mutex

	address ledger.Address
	kind    store.PaymentKind
	asset   ledger.Address
	minter  *ledger.Address

	led *ledger.Ledger
	eng *revshare.Engine
	gw  revshare.Gateway

	log       *slog.Logger
	clock     clockwork.Clock
	listeners []Listener

	queued   []Event
	foldMark *big.Int
}

// NewNative creates an instance paying dividends in native currency held by gw.
func NewNative(name, symbol string, gw revshare.Gateway, opts ...Option) (*Token, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: gateway", ErrNilParam)
	}
	o := buildOptions(opts)
	addr := instanceAddress(o, store.KindNative, name, symbol)
	led := ledger.New(name, symbol, o.decimals)
	return assemble(addr, store.KindNative, ledger.ZeroAddress, led, revshare.NewEngine(led, gw), gw, o), nil
}

// NewToken creates an instance paying dividends in the fungible token
// deployed at asset. The instance's address holds the payment tokens.
func NewToken(name, symbol string, reg gateway.AssetRegistry, asset ledger.Address, opts ...Option) (*Token, error) {
	o := buildOptions(opts)
	addr := instanceAddress(o, store.KindToken, name, symbol)
	if asset == addr {
		return nil, fmt.Errorf("%w: %s", ErrSelfDistribution, asset)
	}
	gw, err := gateway.NewToken(reg, asset, addr)
	if err != nil {
		return nil, err
	}
	led := ledger.New(name, symbol, o.decimals)
	return assemble(addr, store.KindToken, asset, led, revshare.NewEngine(led, gw), gw, o), nil
}

func assemble(addr ledger.Address, kind store.PaymentKind, asset ledger.Address,
	led *ledger.Ledger, eng *revshare.Engine, gw revshare.Gateway, o options) *Token {
	t := &Token{
		address:   addr,
		kind:      kind,
		asset:     asset,
		minter:    o.minter,
		led:       led,
		eng:       eng,
		gw:        gw,
		log:       o.log.With("instance", addr.String(), "symbol", led.Symbol()),
		clock:     o.clock,
		listeners: o.listeners,
	}
	led.SetHook(eng)
	led.OnTransfer(func(ev ledger.TransferEvent) {
		t.queued = append(t.queued, TransferEvent{From: ev.From, To: ev.To, Amount: ev.Amount, At: t.clock.Now()})
	})
	return t
}

// DeriveAddress returns the address an instance gets when WithAddress is
// not given. It is stable for a payment kind, name and symbol.
func DeriveAddress(kind store.PaymentKind, name, symbol string) ledger.Address {
	secret := []byte(name + "\x00" + symbol)
	r := hkdf.New(sha256.New, secret, []byte(addressSalt), []byte(kind))
	var a ledger.Address
	if _, err := io.ReadFull(r, a[:]); err != nil {
		// HKDF-SHA256 yields up to 8160 bytes; 20 never fails.
		panic(err)
	}
	return a
}

func instanceAddress(o options, kind store.PaymentKind, name, symbol string) ledger.Address {
	if o.address != nil {
		return *o.address
	}
	return DeriveAddress(kind, name, symbol)
}

// lock acquires the instance lock and marks the folded total so unlock can
// report funds folded in between.
func (t *Token) lock() {
	t.mu.Lock()
	t.foldMark = t.eng.TotalAccounted()
}

// unlock releases the instance lock and then delivers queued events.
func (t *Token) unlock() {
	if folded := new(big.Int).Sub(t.eng.TotalAccounted(), t.foldMark); folded.Sign() > 0 {
		f, _ := new(big.Float).SetInt(folded).Float64()
		metrics.FundsFoldedTotal.Add(f)
		t.log.Debug("funds folded", "amount", folded.String())
	}
	events := t.queued
	t.queued = nil
	listeners := t.listeners
	t.mu.Unlock()

	for _, ev := range events {
		t.logEvent(ev)
		for _, l := range listeners {
			l(ev)
		}
	}
}

func (t *Token) logEvent(ev Event) {
	switch e := ev.(type) {
	case TransferEvent:
		t.log.Debug("share transfer", "from", e.From.String(), "to", e.To.String(), "amount", e.Amount)
	case PaymentReleased:
		t.log.Info("payment released", "to", e.To.String(), "amount", e.Amount, "kind", string(e.Kind))
	}
}

// AddListener registers l for subsequent events.
func (t *Token) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(append([]Listener(nil), t.listeners...), l)
}

// Address returns the instance address. Token-denominated instances hold
// their payment tokens at it.
func (t *Token) Address() ledger.Address { return t.address }

// Kind returns how the instance is paid.
func (t *Token) Kind() store.PaymentKind { return t.kind }

// PaymentAsset returns the payment token's address, or the zero address for
// native instances.
func (t *Token) PaymentAsset() ledger.Address { return t.asset }

// Minter returns the minter and whether one is configured.
func (t *Token) Minter() (ledger.Address, bool) {
	if t.minter == nil {
		return ledger.ZeroAddress, false
	}
	return *t.minter, true
}

func (t *Token) Name() string    { return t.led.Name() }
func (t *Token) Symbol() string  { return t.led.Symbol() }
func (t *Token) Decimals() uint8 { return t.led.Decimals() }
