package dividends

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libdividends-go/gateway"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
	"github.com/bitfsorg/libdividends-go/store"
)

// Instance returns the record describing this instance.
func (t *Token) Instance() *store.Instance {
	inst := &store.Instance{
		Address:  t.address,
		Name:     t.led.Name(),
		Symbol:   t.led.Symbol(),
		Decimals: t.led.Decimals(),
		Kind:     t.kind,
		Asset:    t.asset,
	}
	if t.minter != nil {
		inst.Minter = *t.minter
	}
	return inst
}

// Checkpoint persists the share ledger and the accounting state to st,
// registering the instance on first use. It fails with
// revshare.ErrPayoutInFlight while a payout is being sent.
func (t *Token) Checkpoint(st store.Store) (cp *store.Checkpoint, err error) {
	defer func() {
		metrics.CheckpointsTotal.WithLabelValues(metrics.Status(err)).Inc()
	}()
	if st == nil {
		return nil, fmt.Errorf("%w: store", ErrNilParam)
	}

	t.lock()
	state, err := t.eng.State()
	var snap ledger.Snapshot
	if err == nil {
		snap = t.led.Snapshot()
	}
	t.unlock()
	if err != nil {
		return nil, err
	}
	data, err := revshare.SerializeState(state)
	if err != nil {
		return nil, err
	}

	if _, err := st.GetInstance(t.address); errors.Is(err, store.ErrNotFound) {
		if err := st.PutInstance(t.Instance()); err != nil {
			return nil, fmt.Errorf("dividends: register instance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("dividends: look up instance: %w", err)
	}

	cp = &store.Checkpoint{Instance: t.address, Ledger: snap, Engine: data}
	if err := st.SaveCheckpoint(cp); err != nil {
		return nil, fmt.Errorf("dividends: save checkpoint: %w", err)
	}
	t.log.Info("checkpoint saved", "seq", cp.Seq, "id", cp.ID, "accounts", len(state.Accounts))
	return cp, nil
}

// RestoreNative rebuilds the native instance stored at addr, paying out of
// gw. Without a checkpoint the instance starts empty.
func RestoreNative(st store.Store, addr ledger.Address, gw revshare.Gateway, opts ...Option) (*Token, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: gateway", ErrNilParam)
	}
	inst, err := loadInstance(st, addr, store.KindNative)
	if err != nil {
		return nil, err
	}
	return restore(st, inst, gw, opts)
}

// RestoreToken rebuilds the token-denominated instance stored at addr,
// resolving its payment asset through reg.
func RestoreToken(st store.Store, addr ledger.Address, reg gateway.AssetRegistry, opts ...Option) (*Token, error) {
	inst, err := loadInstance(st, addr, store.KindToken)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.NewToken(reg, inst.Asset, inst.Address)
	if err != nil {
		return nil, err
	}
	return restore(st, inst, gw, opts)
}

func loadInstance(st store.Store, addr ledger.Address, kind store.PaymentKind) (*store.Instance, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store", ErrNilParam)
	}
	inst, err := st.GetInstance(addr)
	if err != nil {
		return nil, fmt.Errorf("dividends: load instance %s: %w", addr, err)
	}
	if inst.Kind != kind {
		return nil, fmt.Errorf("%w: stored %q, want %q", ErrKindMismatch, inst.Kind, kind)
	}
	return inst, nil
}

func restore(st store.Store, inst *store.Instance, gw revshare.Gateway, opts []Option) (*Token, error) {
	base := []Option{WithAddress(inst.Address), WithDecimals(inst.Decimals)}
	if !inst.Minter.IsZero() {
		base = append(base, WithMinter(inst.Minter))
	}
	o := buildOptions(append(base, opts...))

	cp, err := st.LatestCheckpoint(inst.Address)
	if errors.Is(err, store.ErrNotFound) {
		led := ledger.New(inst.Name, inst.Symbol, o.decimals)
		return assemble(inst.Address, inst.Kind, inst.Asset, led, revshare.NewEngine(led, gw), gw, o), nil
	}
	if err != nil {
		return nil, fmt.Errorf("dividends: load checkpoint: %w", err)
	}

	led, err := ledger.Restore(cp.Ledger)
	if err != nil {
		return nil, err
	}
	state, err := revshare.DeserializeState(cp.Engine)
	if err != nil {
		return nil, err
	}
	if err := revshare.ValidateEntitlements(state, led.Holders()); err != nil {
		return nil, fmt.Errorf("dividends: checkpoint %d inconsistent: %w", cp.Seq, err)
	}
	eng, err := revshare.RestoreEngine(state, led, gw)
	if err != nil {
		return nil, err
	}
	t := assemble(inst.Address, inst.Kind, inst.Asset, led, eng, gw, o)
	t.log.Info("instance restored", "seq", cp.Seq, "holders", len(cp.Ledger.Holders))
	return t, nil
}
