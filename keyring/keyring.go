// Package keyring derives the payout keys of dividend instances from a
// single BIP39 seed.
//
// Key hierarchy: m/44'/236'/{account}'/0/0, where account 0 holds the fee
// key and each native instance gets its own pool account derived from its
// address.
package keyring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"

	"github.com/bitfsorg/libdividends-go/ledger"
)

const (
	purposeBIP44 = 44
	coinTypeBSV  = 236
	feeAccount   = 0
	hardened     = 0x80000000
)

// FileName is the keyring file inside a data directory.
const FileName = "keyring.enc"

// Keyring holds an HD master key.
type Keyring struct {
	master *bip32.ExtendedKey
}

// New builds a keyring from a BIP39 seed.
func New(seed []byte, mainnet bool) (*Keyring, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	net := &chaincfg.TestNet
	if mainnet {
		net = &chaincfg.MainNet
	}
	master, err := bip32.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return &Keyring{master: master}, nil
}

// FeeKey returns the key that pays network fees for every instance.
func (k *Keyring) FeeKey() (*ec.PrivateKey, error) {
	return k.derive(feeAccount)
}

// PoolKey returns the key holding the payment pool of the native instance
// at addr.
func (k *Keyring) PoolKey(addr ledger.Address) (*ec.PrivateKey, error) {
	return k.derive(PoolAccount(addr))
}

// PoolAccount maps an instance address to a non-zero hardened account index.
func PoolAccount(addr ledger.Address) uint32 {
	return binary.BigEndian.Uint32(addr[:4])%(hardened-1) + 1
}

func (k *Keyring) derive(account uint32) (*ec.PrivateKey, error) {
	key := k.master
	for _, idx := range []uint32{purposeBIP44 + hardened, coinTypeBSV + hardened, account + hardened, 0, 0} {
		child, err := key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: m/44'/236'/%d'/0/0: %w", ErrDerivationFailed, account, err)
		}
		key = child
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return priv, nil
}

// Create writes the encrypted seed of mnemonic to dir. It refuses to
// overwrite an existing keyring.
func Create(dir, mnemonic, password string) error {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyringExists, path)
	}
	data, err := EncryptSeed(seed, password)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("keyring: create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("keyring: write %s: %w", path, err)
	}
	return nil
}

// Open decrypts the keyring in dir. A missing file is reported as
// fs.ErrNotExist.
func Open(dir, password string, mainnet bool) (*Keyring, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: read: %w", err)
	}
	seed, err := DecryptSeed(data, password)
	if err != nil {
		return nil, err
	}
	return New(seed, mainnet)
}
