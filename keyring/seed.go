package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/compat/bip39"
	"golang.org/x/crypto/argon2"
)

// Mnemonic entropy sizes.
const (
	Mnemonic12Words = 128
	Mnemonic24Words = 256
)

// Argon2id parameters used to stretch the keyring password.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// formatV1 is the leading byte of an encrypted seed:
//
//	0x01 || salt(16B) || nonce(12B) || AES-256-GCM(seed)
//
// The version byte is bound as additional data, so a rewritten header
// fails authentication.
const (
	formatV1 = 0x01
	saltLen  = 16
	nonceLen = 12
)

// GenerateMnemonic returns a fresh BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(entropyBits int) (string, error) {
	if entropyBits != Mnemonic12Words && entropyBits != Mnemonic24Words {
		return "", ErrInvalidEntropy
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("keyring: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keyring: build mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives the 64-byte BIP39 seed. An empty passphrase is
// valid and still takes part in the derivation.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("keyring: derive seed: %w", err)
	}
	return seed, nil
}

// EncryptSeed seals seed under a key stretched from password.
func EncryptSeed(seed []byte, password string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	header := make([]byte, 1+saltLen+nonceLen)
	header[0] = formatV1
	if _, err := rand.Read(header[1:]); err != nil {
		return nil, fmt.Errorf("keyring: read random salt and nonce: %w", err)
	}
	aead, err := newAEAD(password, header[1:1+saltLen])
	if err != nil {
		return nil, err
	}
	nonce := header[1+saltLen:]
	return aead.Seal(header, nonce, seed, header[:1]), nil
}

// DecryptSeed reverses EncryptSeed. Any authentication failure, including
// a wrong password, is reported as ErrDecryptionFailed.
func DecryptSeed(data []byte, password string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrDecryptionFailed
	}
	if data[0] != formatV1 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, data[0])
	}
	if len(data) < 1+saltLen+nonceLen+1 {
		return nil, ErrDecryptionFailed
	}
	aead, err := newAEAD(password, data[1:1+saltLen])
	if err != nil {
		return nil, err
	}
	nonce := data[1+saltLen : 1+saltLen+nonceLen]
	seed, err := aead.Open(nil, nonce, data[1+saltLen+nonceLen:], data[:1])
	if err != nil || len(seed) == 0 {
		return nil, ErrDecryptionFailed
	}
	return seed, nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keyring: AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("keyring: GCM: %w", err)
	}
	return aead, nil
}
