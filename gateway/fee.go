package gateway

const (
	// DefaultFeeRate is the default fee rate in satoshis per kilobyte.
	DefaultFeeRate uint64 = 1

	// DustLimit is the smallest fee-change output worth creating. Smaller
	// change is left to the miner.
	DustLimit uint64 = 546

	txBaseSize   = 10  // version(4) + locktime(4) + input/output count varints(2)
	txInputSize  = 148 // prevhash(32) + index(4) + scriptlen(1) + P2PKH unlock(~107) + sequence(4)
	txOutputSize = 34  // value(8) + scriptlen(1) + P2PKH lock(25)
)

// EstimateFee calculates the fee for a transaction of the given size.
// feeRate is in satoshis per kilobyte. Returns at least 1 satoshi for any
// non-empty transaction.
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	fee := uint64(txSizeBytes) * feeRate
	return (fee + 999) / 1000
}

// EstimateTxSize estimates the size of a transaction spending numInputs
// P2PKH outputs into numOutputs P2PKH outputs.
func EstimateTxSize(numInputs, numOutputs int) int {
	return txBaseSize + numInputs*txInputSize + numOutputs*txOutputSize
}
