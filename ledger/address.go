package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// AddressLen is the length of a P2PKH public key hash.
const AddressLen = 20

// Address identifies a share holder or payee by its 20-byte P2PKH public key hash.
type Address [AddressLen]byte

// ZeroAddress is the all-zero hash. It stands for "no account" on the mint
// and burn side of a balance update and is never a valid holder.
var ZeroAddress Address

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the lowercase hex encoding of the public key hash.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String renders the mainnet base58check P2PKH form. The hex form is used
// as a fallback if the encoder rejects the hash.
func (a Address) String() string {
	addr, err := script.NewAddressFromPublicKeyHash(a[:], true)
	if err != nil {
		return a.Hex()
	}
	return addr.AddressString
}

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// AddressFromPubKeyHash copies a 20-byte public key hash into an Address.
func AddressFromPubKeyHash(pkh []byte) (Address, error) {
	var a Address
	if len(pkh) != AddressLen {
		return a, fmt.Errorf("%w: public key hash must be %d bytes, got %d", ErrInvalidAddress, AddressLen, len(pkh))
	}
	copy(a[:], pkh)
	return a, nil
}

// ParseAddress decodes either a base58check P2PKH address (any network) or
// the 40-character hex encoding of a public key hash.
func ParseAddress(s string) (Address, error) {
	if len(s) == 2*AddressLen {
		if raw, err := hex.DecodeString(s); err == nil {
			return AddressFromPubKeyHash(raw)
		}
	}
	addr, err := script.NewAddressFromString(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	return AddressFromPubKeyHash([]byte(addr.PublicKeyHash))
}

// MustParseAddress is like ParseAddress but panics on error. Intended for
// tests and package-level fixtures.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
