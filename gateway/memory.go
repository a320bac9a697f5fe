package gateway

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
)

// Memory is a native-currency wallet held in memory. Deposits are credited
// silently, the way funds arrive at an address; payouts are tracked per
// payee.
type Memory struct {
	mu      sync.Mutex
	balance uint64
	paid    map[ledger.Address]uint64
	onSend  func(ctx context.Context, to ledger.Address, amount uint64)
}

// NewMemory returns an empty wallet.
func NewMemory() *Memory {
	return &Memory{paid: make(map[ledger.Address]uint64)}
}

// Deposit credits amount to the wallet.
func (m *Memory) Deposit(amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: deposit overflows balance", ErrInsufficientFunds)
	}
	m.balance += amount
	return nil
}

// Balance returns the amount held.
func (m *Memory) Balance(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// Send pays amount to the given address. The OnSend callback, if any, runs
// after the funds have moved and without the wallet lock held, so it may
// call back into whatever invoked Send.
func (m *Memory) Send(ctx context.Context, to ledger.Address, amount uint64) error {
	m.mu.Lock()
	if amount > m.balance {
		bal := m.balance
		m.mu.Unlock()
		return fmt.Errorf("%w: holding %d, sending %d", ErrInsufficientFunds, bal, amount)
	}
	m.balance -= amount
	m.paid[to] += amount
	cb := m.onSend
	m.mu.Unlock()

	if cb != nil {
		cb(ctx, to, amount)
	}
	return nil
}

// PaidTo returns the total sent to the given address.
func (m *Memory) PaidTo(addr ledger.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paid[addr]
}

// OnSend installs a callback that runs after every successful Send.
func (m *Memory) OnSend(fn func(ctx context.Context, to ledger.Address, amount uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = fn
}

var _ revshare.Gateway = (*Memory)(nil)
