package keyring

import "errors"

var (
	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("keyring: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("keyring: entropy bits must be 128 or 256")

	// ErrInvalidSeed indicates the seed is empty.
	ErrInvalidSeed = errors.New("keyring: invalid seed")

	// ErrDecryptionFailed indicates a wrong password or a corrupted keyring file.
	ErrDecryptionFailed = errors.New("keyring: decryption failed (wrong password or corrupted data)")

	// ErrUnsupportedFormat indicates a keyring file written by an unknown format version.
	ErrUnsupportedFormat = errors.New("keyring: unsupported file format")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("keyring: key derivation failed")

	// ErrKeyringExists indicates a keyring file is already present.
	ErrKeyringExists = errors.New("keyring: keyring already exists")
)
