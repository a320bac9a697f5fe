package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libdividends-go/network"
)

// fakeChain is an in-memory node wallet. Broadcast transactions spend their
// inputs and credit outputs paying to known addresses.
type fakeChain struct {
	mu        sync.Mutex
	utxos     map[string][]*network.UTXO
	scripts   map[string]string // locking script hex -> address
	imported  []string
	broadcast []*transaction.Transaction
	nextTx    byte
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		utxos:   make(map[string][]*network.UTXO),
		scripts: make(map[string]string),
	}
}

func (f *fakeChain) track(t *testing.T, addr *script.Address) string {
	t.Helper()
	lock, err := p2pkh.Lock(addr)
	require.NoError(t, err)
	scriptHex := hex.EncodeToString(*lock)
	f.scripts[scriptHex] = addr.AddressString
	return scriptHex
}

func (f *fakeChain) fund(t *testing.T, addr *script.Address, amounts ...uint64) {
	t.Helper()
	scriptHex := f.track(t, addr)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, amt := range amounts {
		f.nextTx++
		f.utxos[addr.AddressString] = append(f.utxos[addr.AddressString], &network.UTXO{
			TxID:         hex.EncodeToString(bytes.Repeat([]byte{f.nextTx}, 32)),
			Vout:         0,
			Amount:       amt,
			ScriptPubKey: scriptHex,
			Address:      addr.AddressString,
		})
	}
}

func (f *fakeChain) mock() *network.MockBlockchainService {
	return &network.MockBlockchainService{
		ListUnspentFn: func(_ context.Context, address string) ([]*network.UTXO, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]*network.UTXO(nil), f.utxos[address]...), nil
		},
		BroadcastTxFn: func(_ context.Context, rawTxHex string) (string, error) {
			tx, err := transaction.NewTransactionFromHex(rawTxHex)
			if err != nil {
				return "", err
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, in := range tx.Inputs {
				f.spend(in.SourceTXID.String(), in.SourceTxOutIndex)
			}
			txid := tx.TxID().String()
			for i, out := range tx.Outputs {
				scriptHex := hex.EncodeToString(*out.LockingScript)
				if addr, ok := f.scripts[scriptHex]; ok {
					f.utxos[addr] = append(f.utxos[addr], &network.UTXO{
						TxID: txid, Vout: uint32(i), Amount: out.Satoshis,
						ScriptPubKey: scriptHex, Address: addr,
					})
				}
			}
			f.broadcast = append(f.broadcast, tx)
			return txid, nil
		},
		ImportAddressFn: func(_ context.Context, address string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.imported = append(f.imported, address)
			return nil
		},
	}
}

func (f *fakeChain) spend(txid string, vout uint32) {
	for addr, list := range f.utxos {
		kept := list[:0]
		for _, u := range list {
			if u.TxID != txid || u.Vout != vout {
				kept = append(kept, u)
			}
		}
		f.utxos[addr] = kept
	}
}

func newTestNative(t *testing.T, chain network.BlockchainService) (*Native, *script.Address, *script.Address) {
	t.Helper()
	poolKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	feeKey, err := ec.NewPrivateKey()
	require.NoError(t, err)

	n, err := NewNative(chain, poolKey, feeKey, WithMainnet(false), WithFeeRate(50))
	require.NoError(t, err)

	pool, err := script.NewAddressFromString(n.PoolAddress())
	require.NoError(t, err)
	fee, err := script.NewAddressFromString(n.FeeAddress())
	require.NoError(t, err)
	return n, pool, fee
}

func TestNewNative_Validation(t *testing.T) {
	key, err := ec.NewPrivateKey()
	require.NoError(t, err)
	chain := &network.MockBlockchainService{}

	_, err = NewNative(nil, key, key)
	assert.ErrorIs(t, err, ErrNilParam)
	_, err = NewNative(chain, nil, key)
	assert.ErrorIs(t, err, ErrNilParam)
	_, err = NewNative(chain, key, key)
	assert.ErrorIs(t, err, ErrBuildTx)
}

func TestNative_Watch(t *testing.T) {
	fc := newFakeChain()
	n, pool, fee := newTestNative(t, fc.mock())

	require.NoError(t, n.Watch(context.Background()))
	assert.Equal(t, []string{pool.AddressString, fee.AddressString}, fc.imported)
}

func TestNative_Balance(t *testing.T) {
	fc := newFakeChain()
	n, pool, fee := newTestNative(t, fc.mock())
	fc.fund(t, pool, 1000, 2500)
	fc.fund(t, fee, 99999)

	bal, err := n.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3500), bal)
}

func TestNative_Send(t *testing.T) {
	ctx := context.Background()
	fc := newFakeChain()
	n, pool, fee := newTestNative(t, fc.mock())
	fc.fund(t, pool, 1000, 2500)
	fc.fund(t, fee, 100000)
	payee := makeAddr(0x42)

	require.NoError(t, n.Send(ctx, payee, 3000))

	bal, err := n.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal, "pool drops by exactly the amount sent")

	require.Len(t, fc.broadcast, 1)
	tx := fc.broadcast[0]
	assert.Equal(t, tx.TxID().String(), n.LastTxID())
	require.Len(t, tx.Inputs, 3)
	require.Len(t, tx.Outputs, 3)

	payeeAddr, err := script.NewAddressFromPublicKeyHash(payee[:], false)
	require.NoError(t, err)
	wantLock, err := p2pkh.Lock(payeeAddr)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(*wantLock, *tx.Outputs[0].LockingScript))
	assert.Equal(t, uint64(3000), tx.Outputs[0].Satoshis)
	assert.Equal(t, uint64(500), tx.Outputs[1].Satoshis)

	wantFee := EstimateFee(EstimateTxSize(3, 3), 50)
	assert.Equal(t, 100000-wantFee, tx.Outputs[2].Satoshis)

	feeLeft := network.SumUTXOs(fc.utxos[fee.AddressString])
	assert.Equal(t, 100000-wantFee, feeLeft)
}

func TestNative_SendExactPoolNoChange(t *testing.T) {
	ctx := context.Background()
	fc := newFakeChain()
	n, pool, fee := newTestNative(t, fc.mock())
	fc.fund(t, pool, 700)
	fc.fund(t, fee, 5000)

	require.NoError(t, n.Send(ctx, makeAddr(0x01), 700))
	require.Len(t, fc.broadcast, 1)
	assert.Len(t, fc.broadcast[0].Outputs, 2)

	bal, _ := n.Balance(ctx)
	assert.Zero(t, bal)
}

func TestNative_SendZeroIsNoop(t *testing.T) {
	fc := newFakeChain()
	n, _, _ := newTestNative(t, fc.mock())

	require.NoError(t, n.Send(context.Background(), makeAddr(0x01), 0))
	assert.Empty(t, fc.broadcast)
}

func TestNative_SendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient pool", func(t *testing.T) {
		fc := newFakeChain()
		n, pool, fee := newTestNative(t, fc.mock())
		fc.fund(t, pool, 100)
		fc.fund(t, fee, 5000)
		assert.ErrorIs(t, n.Send(ctx, makeAddr(0x01), 101), ErrInsufficientFunds)
		assert.Empty(t, fc.broadcast)
	})

	t.Run("empty fee wallet", func(t *testing.T) {
		fc := newFakeChain()
		n, pool, _ := newTestNative(t, fc.mock())
		fc.fund(t, pool, 100)
		assert.ErrorIs(t, n.Send(ctx, makeAddr(0x01), 50), ErrInsufficientFee)
	})

	t.Run("broadcast rejected", func(t *testing.T) {
		fc := newFakeChain()
		mock := fc.mock()
		mock.BroadcastTxFn = func(context.Context, string) (string, error) {
			return "", fmt.Errorf("%w: txn-mempool-conflict", network.ErrBroadcastRejected)
		}
		n, pool, fee := newTestNative(t, mock)
		fc.fund(t, pool, 100)
		fc.fund(t, fee, 5000)
		err := n.Send(ctx, makeAddr(0x01), 50)
		assert.ErrorIs(t, err, network.ErrBroadcastRejected)
	})

	t.Run("node unreachable", func(t *testing.T) {
		mock := &network.MockBlockchainService{
			ListUnspentFn: func(context.Context, string) ([]*network.UTXO, error) {
				return nil, network.ErrConnectionFailed
			},
		}
		n, _, _ := newTestNative(t, mock)
		err := n.Send(ctx, makeAddr(0x01), 50)
		assert.True(t, errors.Is(err, network.ErrConnectionFailed))
		_, err = n.Balance(ctx)
		assert.ErrorIs(t, err, network.ErrConnectionFailed)
	})
}

func TestEstimateFee(t *testing.T) {
	tests := []struct {
		size int
		rate uint64
		want uint64
	}{
		{226, 1, 1},
		{1000, 1, 1},
		{1001, 1, 2},
		{226, 50, 12},
		{226, 0, 1},
		{0, 50, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateFee(tt.size, tt.rate), "size=%d rate=%d", tt.size, tt.rate)
	}
	assert.Equal(t, 10+2*148+3*34, EstimateTxSize(2, 3))
}
