package dividends

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libdividends-go/gateway"
	"github.com/bitfsorg/libdividends-go/internal/logger"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
	"github.com/bitfsorg/libdividends-go/store"
)

var (
	alice = makeAddr(0x01)
	bob   = makeAddr(0x02)
	carol = makeAddr(0x03)
	owner = makeAddr(0xEE)
)

func makeAddr(seed byte) ledger.Address {
	var a ledger.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) payments() []PaymentReleased {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PaymentReleased
	for _, ev := range r.events {
		if p, ok := ev.(PaymentReleased); ok {
			out = append(out, p)
		}
	}
	return out
}

func newNative(t *testing.T, opts ...Option) (*Token, *gateway.Memory) {
	t.Helper()
	wallet := gateway.NewMemory()
	opts = append([]Option{WithLogger(logger.NewTest())}, opts...)
	tok, err := NewNative("Revenue Share", "RVS", wallet, opts...)
	require.NoError(t, err)
	return tok, wallet
}

func owed(t *testing.T, tok *Token, addr ledger.Address) uint64 {
	t.Helper()
	n, err := tok.PendingRelease(context.Background(), addr)
	require.NoError(t, err)
	return n
}

func TestNewNative(t *testing.T) {
	_, err := NewNative("A", "A", nil)
	assert.ErrorIs(t, err, ErrNilParam)

	tok, _ := newNative(t, WithDecimals(8))
	assert.Equal(t, "Revenue Share", tok.Name())
	assert.Equal(t, "RVS", tok.Symbol())
	assert.Equal(t, uint8(8), tok.Decimals())
	assert.Equal(t, store.KindNative, tok.Kind())
	assert.True(t, tok.PaymentAsset().IsZero())
	assert.Equal(t, DeriveAddress(store.KindNative, "Revenue Share", "RVS"), tok.Address())
	_, hasMinter := tok.Minter()
	assert.False(t, hasMinter)
}

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress(store.KindNative, "Share", "SHR")
	assert.Equal(t, a, DeriveAddress(store.KindNative, "Share", "SHR"))
	assert.NotEqual(t, a, DeriveAddress(store.KindToken, "Share", "SHR"))
	assert.NotEqual(t, a, DeriveAddress(store.KindNative, "Shar", "eSHR"))
	assert.False(t, a.IsZero())
}

// TestNative_SinglePayee deposits 10 and releases all of it in pieces.
func TestNative_SinglePayee(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)

	require.NoError(t, tok.Mint(ctx, owner, alice, 1))
	require.NoError(t, wallet.Deposit(10))
	assert.Equal(t, uint64(10), owed(t, tok, alice))

	require.NoError(t, tok.Release(ctx, alice, 4))
	assert.Equal(t, uint64(6), owed(t, tok, alice))
	assert.ErrorIs(t, tok.Release(ctx, alice, 7), revshare.ErrAmountExceedsOwed)
	require.NoError(t, tok.Release(ctx, alice, 6))

	assert.Zero(t, owed(t, tok, alice))
	assert.Equal(t, uint64(10), wallet.PaidTo(alice))
	assert.Equal(t, uint64(10), tok.Released(alice))
	assert.Equal(t, uint64(10), tok.TotalReleased())
	require.NoError(t, tok.Audit(ctx))
}

// TestNative_ThreePayees splits 1000 across 20/10/70 shares.
func TestNative_ThreePayees(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)

	require.NoError(t, tok.Mint(ctx, owner, alice, 20))
	require.NoError(t, tok.Mint(ctx, owner, bob, 10))
	require.NoError(t, tok.Mint(ctx, owner, carol, 70))
	require.NoError(t, wallet.Deposit(1000))

	folded, err := tok.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), folded)

	for addr, want := range map[ledger.Address]uint64{alice: 200, bob: 100, carol: 700} {
		got, err := tok.PendingPayment(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, tok.Audit(ctx))
}

// TestNative_VaryingShares issues, burns and transfers shares between
// deposits, then pays everyone out with ReleaseAll.
func TestNative_VaryingShares(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tok, wallet := newNative(t, WithListener(rec.listen))

	require.NoError(t, tok.Mint(ctx, owner, alice, 100))
	require.NoError(t, tok.Mint(ctx, owner, bob, 100))
	require.NoError(t, wallet.Deposit(100))

	require.NoError(t, tok.Mint(ctx, owner, alice, 100))
	require.NoError(t, tok.Mint(ctx, owner, carol, 100))
	require.NoError(t, wallet.Deposit(100))

	require.NoError(t, tok.Burn(ctx, owner, alice, 200))
	require.NoError(t, wallet.Deposit(100))

	require.NoError(t, tok.Transfer(ctx, bob, carol, 40))
	require.NoError(t, wallet.Deposit(100))

	want := map[ledger.Address]uint64{alice: 100, bob: 155, carol: 145}
	for addr, amount := range want {
		assert.Equal(t, amount, owed(t, tok, addr))
	}
	assert.Zero(t, tok.BalanceOf(alice))
	_, err := tok.PendingPayment(ctx, alice)
	require.NoError(t, err)

	for _, addr := range []ledger.Address{alice, bob, carol} {
		paid, err := tok.ReleaseAll(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, want[addr], paid)
		assert.Equal(t, want[addr], wallet.PaidTo(addr))
	}
	bal, _ := wallet.Balance(ctx)
	assert.Zero(t, bal)

	payments := rec.payments()
	require.Len(t, payments, 3)
	for _, p := range payments {
		assert.Equal(t, want[p.To], p.Amount)
		assert.Equal(t, KindAll, p.Kind)
	}
	require.NoError(t, tok.Audit(ctx))

	_, err = tok.ReleaseAll(ctx, alice)
	assert.ErrorIs(t, err, revshare.ErrNothingOwed)
}

func TestNative_ReleaseWithheld(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)

	require.NoError(t, tok.Mint(ctx, owner, alice, 10))
	require.NoError(t, wallet.Deposit(500))
	require.NoError(t, tok.Transfer(ctx, alice, bob, 10))

	assert.Equal(t, uint64(500), tok.Withheld(alice))
	assert.ErrorIs(t, tok.ReleaseWithheld(ctx, alice, 501), revshare.ErrAmountExceedsWithheld)
	require.NoError(t, tok.ReleaseWithheld(ctx, alice, 200))
	assert.Equal(t, uint64(300), tok.Withheld(alice))
	assert.Equal(t, uint64(200), wallet.PaidTo(alice))

	// Alice holds no shares but still collects what she earned.
	paid, err := tok.ReleaseAll(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), paid)
	require.NoError(t, tok.Audit(ctx))
}

func TestNative_Errors(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)
	require.NoError(t, tok.Mint(ctx, owner, alice, 10))
	require.NoError(t, wallet.Deposit(100))

	assert.ErrorIs(t, tok.Release(ctx, carol, 0), revshare.ErrNoShares)
	assert.ErrorIs(t, tok.Transfer(ctx, alice, bob, 11), revshare.ErrInsufficientShares)
	assert.ErrorIs(t, tok.Transfer(ctx, alice, bob, 11), ledger.ErrInsufficientBalance)
	assert.ErrorIs(t, tok.Burn(ctx, owner, alice, 11), revshare.ErrInsufficientShares)
	assert.ErrorIs(t, tok.Mint(ctx, owner, ledger.ZeroAddress, 1), ledger.ErrZeroAddress)

	// None of the failures moved anything.
	assert.Equal(t, uint64(10), tok.BalanceOf(alice))
	assert.Equal(t, uint64(100), owed(t, tok, alice))
	require.NoError(t, tok.Audit(ctx))
}

func TestNative_TransferFrom(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)
	require.NoError(t, tok.Mint(ctx, owner, alice, 10))
	require.NoError(t, wallet.Deposit(100))

	require.NoError(t, tok.Approve(alice, carol, 4))
	assert.Equal(t, uint64(4), tok.Allowance(alice, carol))
	assert.ErrorIs(t, tok.TransferFrom(ctx, carol, alice, bob, 5), ledger.ErrInsufficientAllowance)

	require.NoError(t, tok.TransferFrom(ctx, carol, alice, bob, 4))
	assert.Zero(t, tok.Allowance(alice, carol))
	assert.Equal(t, uint64(6), tok.BalanceOf(alice))
	assert.Equal(t, uint64(4), tok.BalanceOf(bob))
	assert.Equal(t, uint64(100), owed(t, tok, alice))
	assert.Zero(t, owed(t, tok, bob))

	require.NoError(t, wallet.Deposit(100))
	assert.Equal(t, uint64(160), owed(t, tok, alice))
	assert.Equal(t, uint64(40), owed(t, tok, bob))
}

func TestMinterRole(t *testing.T) {
	ctx := context.Background()
	tok, _ := newNative(t, WithMinter(owner))

	m, ok := tok.Minter()
	require.True(t, ok)
	assert.Equal(t, owner, m)

	assert.ErrorIs(t, tok.Mint(ctx, alice, alice, 5), ErrUnauthorized)
	require.NoError(t, tok.Mint(ctx, owner, alice, 5))
	assert.ErrorIs(t, tok.Burn(ctx, alice, alice, 5), ErrUnauthorized)
	require.NoError(t, tok.Burn(ctx, owner, alice, 2))
	assert.Equal(t, uint64(3), tok.TotalSupply())
}

// failingGateway wraps a Memory wallet and fails sends on demand.
type failingGateway struct {
	*gateway.Memory
	fail error
}

func (g *failingGateway) Send(ctx context.Context, to ledger.Address, amount uint64) error {
	if g.fail != nil {
		return g.fail
	}
	return g.Memory.Send(ctx, to, amount)
}

func TestRelease_GatewayFailureReverts(t *testing.T) {
	ctx := context.Background()
	gw := &failingGateway{Memory: gateway.NewMemory()}
	rec := &recorder{}
	tok, err := NewNative("Share", "SHR", gw, WithListener(rec.listen))
	require.NoError(t, err)

	require.NoError(t, tok.Mint(ctx, owner, alice, 1))
	require.NoError(t, gw.Deposit(50))
	require.NoError(t, tok.Transfer(ctx, alice, bob, 1))
	require.NoError(t, gw.Deposit(50))

	gw.fail = errors.New("node unreachable")
	_, err = tok.ReleaseAll(ctx, alice)
	assert.ErrorContains(t, err, "node unreachable")
	assert.Equal(t, uint64(50), tok.Withheld(alice))
	assert.Equal(t, uint64(50), owed(t, tok, alice))
	assert.Error(t, tok.Release(ctx, bob, 50))
	assert.Equal(t, uint64(50), owed(t, tok, bob))
	assert.Zero(t, tok.TotalReleased())
	assert.Empty(t, rec.payments())
	require.NoError(t, tok.Audit(ctx))

	gw.fail = nil
	require.NoError(t, tok.Release(ctx, bob, 50))
	assert.Equal(t, uint64(50), gw.PaidTo(bob))
	require.NoError(t, tok.Audit(ctx))
}

// TestRelease_Reentrancy has the payee call back into the instance while
// its payout is being sent.
func TestRelease_Reentrancy(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)
	require.NoError(t, tok.Mint(ctx, owner, alice, 1))
	require.NoError(t, wallet.Deposit(100))

	var reentered bool
	var nestedErr, checkpointErr error
	var nestedOwed uint64
	wallet.OnSend(func(ctx context.Context, to ledger.Address, amount uint64) {
		if reentered {
			return
		}
		reentered = true
		nestedOwed, _ = tok.PendingRelease(ctx, to)
		nestedErr = tok.Release(ctx, to, 100)
		_, checkpointErr = tok.Checkpoint(store.NewMemStore())
	})

	require.NoError(t, tok.Release(ctx, alice, 100))
	require.True(t, reentered)
	assert.Zero(t, nestedOwed)
	assert.ErrorIs(t, nestedErr, revshare.ErrAmountExceedsOwed)
	assert.ErrorIs(t, checkpointErr, revshare.ErrPayoutInFlight)
	assert.Equal(t, uint64(100), wallet.PaidTo(alice))
	require.NoError(t, tok.Audit(ctx))
}

func TestListener_MayCallBack(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	tok, _ := newNative(t, WithClock(clock))

	var seen []TransferEvent
	var supply []uint64
	tok.AddListener(func(ev Event) {
		if tr, ok := ev.(TransferEvent); ok {
			seen = append(seen, tr)
			supply = append(supply, tok.TotalSupply())
		}
	})

	require.NoError(t, tok.Mint(ctx, owner, alice, 7))
	require.NoError(t, tok.Transfer(ctx, alice, bob, 3))
	require.NoError(t, tok.Burn(ctx, owner, bob, 1))

	require.Len(t, seen, 3)
	assert.Equal(t, TransferEvent{From: ledger.ZeroAddress, To: alice, Amount: 7, At: clock.Now()}, seen[0])
	assert.Equal(t, "Transfer", seen[1].EventName())
	assert.Equal(t, ledger.ZeroAddress, seen[2].To)
	assert.Equal(t, []uint64{7, 7, 6}, supply)
}

func TestRelease_Metrics(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t)
	require.NoError(t, tok.Mint(ctx, owner, alice, 1))
	require.NoError(t, wallet.Deposit(30))

	success := metrics.ReleasesTotal.WithLabelValues(string(KindPending), "success")
	failed := metrics.ReleasesTotal.WithLabelValues(string(KindPending), "error")
	units := metrics.ReleasedUnitsTotal.WithLabelValues(string(KindPending))
	s0, f0, u0 := testutil.ToFloat64(success), testutil.ToFloat64(failed), testutil.ToFloat64(units)

	require.NoError(t, tok.Release(ctx, alice, 30))
	assert.Error(t, tok.Release(ctx, alice, 1))

	assert.Equal(t, s0+1, testutil.ToFloat64(success))
	assert.Equal(t, f0+1, testutil.ToFloat64(failed))
	assert.Equal(t, u0+30, testutil.ToFloat64(units))
}

// TestConcurrentOperations hammers one instance from several goroutines and
// checks the books still balance.
func TestConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	tok, wallet := newNative(t, WithLogger(logger.Discard()))
	holders := []ledger.Address{alice, bob, carol}
	for _, h := range holders {
		require.NoError(t, tok.Mint(ctx, owner, h, 100))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				a := holders[rng.Intn(len(holders))]
				b := holders[rng.Intn(len(holders))]
				switch rng.Intn(4) {
				case 0:
					_ = wallet.Deposit(uint64(rng.Intn(1000)))
				case 1:
					_ = tok.Transfer(ctx, a, b, uint64(rng.Intn(20)))
				case 2:
					_, _ = tok.ReleaseAll(ctx, a)
				default:
					_, _ = tok.Sync(ctx)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	require.NoError(t, tok.Audit(ctx))
	var paid uint64
	for _, h := range holders {
		paid += wallet.PaidTo(h)
	}
	assert.Equal(t, paid, tok.TotalReleased())
}
