package dividends

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
)

// PendingPayment returns the accumulator-derived amount addr may release,
// after folding in any funds that arrived since the last call.
func (t *Token) PendingPayment(ctx context.Context, addr ledger.Address) (uint64, error) {
	t.lock()
	defer t.unlock()
	return t.eng.PendingPayment(ctx, addr)
}

// PendingRelease returns everything addr can be paid right now: withheld
// plus pending.
func (t *Token) PendingRelease(ctx context.Context, addr ledger.Address) (uint64, error) {
	t.lock()
	defer t.unlock()
	return t.eng.Owed(ctx, addr)
}

// Withheld returns the dividends addr locked in through share transfers.
func (t *Token) Withheld(addr ledger.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Withheld(addr)
}

// Released returns the cumulative amount paid to addr.
func (t *Token) Released(addr ledger.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Released(addr)
}

// TotalReleased returns the cumulative amount paid to all holders.
func (t *Token) TotalReleased() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.TotalReleased()
}

// TotalAccounted returns the cumulative funds folded into the accumulator.
func (t *Token) TotalAccounted() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.TotalAccounted()
}

// Sync folds funds that arrived since the last call into the accumulator
// and returns the amount folded.
func (t *Token) Sync(ctx context.Context) (uint64, error) {
	t.lock()
	folded, err := t.eng.Synchronize(ctx)
	t.unlock()

	result := "idle"
	switch {
	case err != nil:
		result = "error"
	case folded > 0:
		result = "folded"
	}
	metrics.SynchronizationsTotal.WithLabelValues(result).Inc()
	return folded, err
}

// Release pays amount of addr's pending payment.
func (t *Token) Release(ctx context.Context, addr ledger.Address, amount uint64) error {
	_, err := t.release(ctx, KindPending, func() (*revshare.Payout, error) {
		return t.eng.PrepareRelease(ctx, addr, amount)
	})
	return err
}

// ReleaseWithheld pays amount of addr's withheld balance.
func (t *Token) ReleaseWithheld(ctx context.Context, addr ledger.Address, amount uint64) error {
	_, err := t.release(ctx, KindWithheld, func() (*revshare.Payout, error) {
		return t.eng.PrepareReleaseWithheld(ctx, addr, amount)
	})
	return err
}

// ReleaseAll pays everything addr is owed and returns the amount paid.
func (t *Token) ReleaseAll(ctx context.Context, addr ledger.Address) (uint64, error) {
	return t.release(ctx, KindAll, func() (*revshare.Payout, error) {
		return t.eng.PrepareReleaseAll(ctx, addr)
	})
}

// release records the payout under the lock, moves the funds with the lock
// released, and then settles or reverts the record.
func (t *Token) release(ctx context.Context, kind ReleaseKind, prepare func() (*revshare.Payout, error)) (uint64, error) {
	t.lock()
	p, err := prepare()
	t.unlock()
	if err != nil {
		metrics.ReleasesTotal.WithLabelValues(string(kind), metrics.Status(err)).Inc()
		return 0, err
	}

	var sendErr error
	if p.Amount > 0 {
		sendErr = t.gw.Send(ctx, p.To, p.Amount)
	}

	t.lock()
	if sendErr != nil {
		if abortErr := p.Abort(); abortErr != nil {
			sendErr = fmt.Errorf("%w (abort: %v)", sendErr, abortErr)
		}
	} else {
		err = p.Settle()
		if err == nil {
			t.queued = append(t.queued, PaymentReleased{To: p.To, Amount: p.Amount, Kind: kind, At: t.clock.Now()})
		}
	}
	t.unlock()

	if sendErr != nil {
		metrics.ReleasesTotal.WithLabelValues(string(kind), "error").Inc()
		t.log.Warn("release failed", "to", p.To.String(), "amount", p.Amount, "error", sendErr)
		return 0, fmt.Errorf("dividends: send %d to %s: %w", p.Amount, p.To, sendErr)
	}
	metrics.ReleasesTotal.WithLabelValues(string(kind), metrics.Status(err)).Inc()
	if err != nil {
		return 0, err
	}
	metrics.ReleasedUnitsTotal.WithLabelValues(string(kind)).Add(float64(p.Amount))
	return p.Amount, nil
}
