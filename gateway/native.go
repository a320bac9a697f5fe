package gateway

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libdividends-go/ledger"
	"github.com/bitfsorg/libdividends-go/revshare"
	"github.com/bitfsorg/libdividends-go/network"
)

// Native holds BSV at a pool address watched by a node. Its balance is the
// value of the pool's unspent outputs, so deposits are plain payments to the
// pool address and need no notification.
//
// Payouts spend pool outputs to the payee and return change to the pool.
// Mining fees are paid from a separate fee wallet so the pool balance drops
// by exactly the amount sent.
type Native struct {
	chain   network.BlockchainService
	poolKey *ec.PrivateKey
	feeKey  *ec.PrivateKey
	pool    *script.Address
	fee     *script.Address
	mainnet bool
	feeRate uint64
	log     *slog.Logger

	// mu serializes payouts so two sends never select the same outputs.
	mu     sync.Mutex
	lastTx string
}

// NativeOption configures a Native gateway.
type NativeOption func(*Native)

// WithMainnet selects mainnet address encoding. Defaults to true.
func WithMainnet(mainnet bool) NativeOption {
	return func(n *Native) { n.mainnet = mainnet }
}

// WithFeeRate sets the fee rate in satoshis per kilobyte.
func WithFeeRate(rate uint64) NativeOption {
	return func(n *Native) { n.feeRate = rate }
}

// WithNativeLogger sets the logger used for broadcast records.
func WithNativeLogger(log *slog.Logger) NativeOption {
	return func(n *Native) { n.log = log }
}

// NewNative creates a gateway holding funds at poolKey's address and paying
// fees from feeKey's address.
func NewNative(chain network.BlockchainService, poolKey, feeKey *ec.PrivateKey, opts ...NativeOption) (*Native, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: blockchain service", ErrNilParam)
	}
	if poolKey == nil || feeKey == nil {
		return nil, fmt.Errorf("%w: pool and fee keys", ErrNilParam)
	}
	n := &Native{
		chain:   chain,
		poolKey: poolKey,
		feeKey:  feeKey,
		mainnet: true,
		feeRate: DefaultFeeRate,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}

	var err error
	if n.pool, err = script.NewAddressFromPublicKey(poolKey.PubKey(), n.mainnet); err != nil {
		return nil, fmt.Errorf("%w: pool address: %w", ErrBuildTx, err)
	}
	if n.fee, err = script.NewAddressFromPublicKey(feeKey.PubKey(), n.mainnet); err != nil {
		return nil, fmt.Errorf("%w: fee address: %w", ErrBuildTx, err)
	}
	if n.pool.AddressString == n.fee.AddressString {
		return nil, fmt.Errorf("%w: pool and fee keys must differ", ErrBuildTx)
	}
	return n, nil
}

// PoolAddress returns the address deposits should be paid to.
func (n *Native) PoolAddress() string { return n.pool.AddressString }

// FeeAddress returns the address that funds mining fees.
func (n *Native) FeeAddress() string { return n.fee.AddressString }

// LastTxID returns the txid of the most recent payout broadcast.
func (n *Native) LastTxID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastTx
}

// Watch imports the pool and fee addresses into the node's wallet.
func (n *Native) Watch(ctx context.Context) error {
	for _, addr := range []string{n.pool.AddressString, n.fee.AddressString} {
		if err := n.chain.ImportAddress(ctx, addr); err != nil {
			return fmt.Errorf("gateway: import %s: %w", addr, err)
		}
	}
	return nil
}

// Balance returns the value of the pool's unspent outputs, confirmed or not.
func (n *Native) Balance(ctx context.Context) (uint64, error) {
	utxos, err := n.chain.ListUnspent(ctx, n.pool.AddressString)
	if err != nil {
		return 0, fmt.Errorf("gateway: list pool outputs: %w", err)
	}
	return network.SumUTXOs(utxos), nil
}

// Send pays amount satoshis from the pool to the given address.
func (n *Native) Send(ctx context.Context, to ledger.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	poolUTXOs, err := n.chain.ListUnspent(ctx, n.pool.AddressString)
	if err != nil {
		return fmt.Errorf("gateway: list pool outputs: %w", err)
	}
	poolIn, poolTotal := selectCoins(poolUTXOs, amount)
	if poolTotal < amount {
		return fmt.Errorf("%w: pool holds %d, sending %d", ErrInsufficientFunds, network.SumUTXOs(poolUTXOs), amount)
	}
	poolChange := poolTotal - amount

	feeUTXOs, err := n.chain.ListUnspent(ctx, n.fee.AddressString)
	if err != nil {
		return fmt.Errorf("gateway: list fee outputs: %w", err)
	}

	// Outputs: payee, pool change (if any), fee change (if above dust).
	numOutputs := 2
	if poolChange > 0 {
		numOutputs++
	}
	feeIn, feeTotal, fee, ok := selectFee(feeUTXOs, len(poolIn), numOutputs, n.feeRate)
	if !ok {
		return fmt.Errorf("%w: fee wallet holds %d, need %d", ErrInsufficientFee, network.SumUTXOs(feeUTXOs), fee)
	}
	feeChange := feeTotal - fee

	payee, err := script.NewAddressFromPublicKeyHash(to[:], n.mainnet)
	if err != nil {
		return fmt.Errorf("%w: payee address: %w", ErrBuildTx, err)
	}

	sdkTx := transaction.NewTransaction()
	if err := n.addInputs(sdkTx, poolIn, n.poolKey); err != nil {
		return err
	}
	if err := n.addInputs(sdkTx, feeIn, n.feeKey); err != nil {
		return err
	}
	if err := addOutput(sdkTx, payee, amount); err != nil {
		return err
	}
	if poolChange > 0 {
		if err := addOutput(sdkTx, n.pool, poolChange); err != nil {
			return err
		}
	}
	paidFee := feeTotal
	if feeChange > DustLimit {
		if err := addOutput(sdkTx, n.fee, feeChange); err != nil {
			return err
		}
		paidFee = fee
	}

	if err := sdkTx.Sign(); err != nil {
		return fmt.Errorf("%w: sign: %w", ErrBuildTx, err)
	}

	txid, err := n.chain.BroadcastTx(ctx, sdkTx.Hex())
	if err != nil {
		return fmt.Errorf("gateway: broadcast payout: %w", err)
	}
	n.lastTx = txid
	n.log.Info("payout broadcast",
		"txid", txid,
		"to", payee.AddressString,
		"amount", amount,
		"fee", paidFee,
	)
	return nil
}

func (n *Native) addInputs(sdkTx *transaction.Transaction, utxos []*network.UTXO, key *ec.PrivateKey) error {
	unlocker, err := p2pkh.Unlock(key, nil)
	if err != nil {
		return fmt.Errorf("%w: unlocker: %w", ErrBuildTx, err)
	}
	for _, u := range utxos {
		hash, err := txidHash(u.TxID)
		if err != nil {
			return err
		}
		lockBytes, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return fmt.Errorf("%w: script of %s:%d: %w", ErrBuildTx, u.TxID, u.Vout, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       hash,
			SourceTxOutIndex: u.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
		in := sdkTx.Inputs[len(sdkTx.Inputs)-1]
		in.SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      u.Amount,
			LockingScript: script.NewFromBytes(lockBytes),
		})
		in.UnlockingScriptTemplate = unlocker
	}
	return nil
}

func addOutput(sdkTx *transaction.Transaction, addr *script.Address, satoshis uint64) error {
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return fmt.Errorf("%w: P2PKH lock: %w", ErrBuildTx, err)
	}
	sdkTx.AddOutput(&transaction.TransactionOutput{
		Satoshis:      satoshis,
		LockingScript: lock,
	})
	return nil
}

// txidHash converts a display-order hex txid into an internal-order hash.
func txidHash(txid string) (*chainhash.Hash, error) {
	raw, err := hex.DecodeString(txid)
	if err != nil || len(raw) != chainhash.HashSize {
		return nil, fmt.Errorf("%w: invalid txid %q", ErrBuildTx, txid)
	}
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	hash, err := chainhash.NewHash(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildTx, err)
	}
	return hash, nil
}

// selectCoins picks outputs largest first until their value covers target.
func selectCoins(utxos []*network.UTXO, target uint64) ([]*network.UTXO, uint64) {
	sorted := sortedByValue(utxos)
	var picked []*network.UTXO
	var total uint64
	for _, u := range sorted {
		if total >= target {
			break
		}
		picked = append(picked, u)
		total += u.Amount
	}
	return picked, total
}

// selectFee picks fee-wallet outputs until they cover the fee of the whole
// transaction, re-estimating as inputs are added. The returned fee assumes
// a fee change output is present.
func selectFee(utxos []*network.UTXO, poolInputs, outputs int, rate uint64) ([]*network.UTXO, uint64, uint64, bool) {
	sorted := sortedByValue(utxos)
	var picked []*network.UTXO
	var total uint64
	fee := EstimateFee(EstimateTxSize(poolInputs+1, outputs), rate)
	for _, u := range sorted {
		picked = append(picked, u)
		total += u.Amount
		fee = EstimateFee(EstimateTxSize(poolInputs+len(picked), outputs), rate)
		if total >= fee {
			return picked, total, fee, true
		}
	}
	return picked, total, fee, false
}

func sortedByValue(utxos []*network.UTXO) []*network.UTXO {
	sorted := make([]*network.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u != nil {
			sorted = append(sorted, u)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	return sorted
}

var _ revshare.Gateway = (*Native)(nil)
