package revshare

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/bitfsorg/libdividends-go/ledger"
)

const (
	stateVersion = 1

	stateHeaderSize  = 1 // version(1)
	bigLenSize       = 2 // magnitude length prefix
	accountCountSize = 4
	accountFixedSize = 37 // address(20) + flags(1) + withheld(8) + released(8)

	flagEverHeld           = 0x01
	flagNegativeCorrection = 0x02
)

// SerializeState encodes engine state to a big-endian binary layout:
//
//	version(1) | M | TotalAccounted | TotalReleased | num_accounts(4) | accounts...
//
// where each big integer is len(2) || magnitude and each account is
// address(20) | flags(1) | withheld(8) | released(8) | correction magnitude.
func SerializeState(s *State) ([]byte, error) {
	if len(s.Accounts) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d accounts", ErrInvalidStateData, len(s.Accounts))
	}
	for _, x := range []*big.Int{s.Accumulator, s.TotalAccounted, s.TotalReleased} {
		if x == nil || x.Sign() < 0 {
			return nil, fmt.Errorf("%w: totals must be non-negative", ErrInvalidStateData)
		}
	}

	buf := make([]byte, 0, stateHeaderSize+3*bigLenSize+accountCountSize+len(s.Accounts)*(accountFixedSize+bigLenSize+32))
	buf = append(buf, stateVersion)

	var err error
	for _, x := range []*big.Int{s.Accumulator, s.TotalAccounted, s.TotalReleased} {
		if buf, err = appendBig(buf, x); err != nil {
			return nil, err
		}
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Accounts)))
	for _, a := range s.Accounts {
		buf = append(buf, a.Address[:]...)
		var flags byte
		if a.EverHeld {
			flags |= flagEverHeld
		}
		corr := a.Correction
		if corr == nil {
			corr = new(big.Int)
		}
		if corr.Sign() < 0 {
			flags |= flagNegativeCorrection
		}
		buf = append(buf, flags)
		buf = binary.BigEndian.AppendUint64(buf, a.Withheld)
		buf = binary.BigEndian.AppendUint64(buf, a.Released)
		if buf, err = appendBig(buf, new(big.Int).Abs(corr)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DeserializeState decodes data produced by SerializeState.
func DeserializeState(data []byte) (*State, error) {
	if len(data) < stateHeaderSize+3*bigLenSize+accountCountSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidStateData, len(data))
	}
	if data[0] != stateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidStateData, data[0])
	}
	offset := stateHeaderSize

	s := &State{}
	var err error
	for _, dst := range []**big.Int{&s.Accumulator, &s.TotalAccounted, &s.TotalReleased} {
		if *dst, offset, err = readBig(data, offset); err != nil {
			return nil, err
		}
	}

	if len(data) < offset+accountCountSize {
		return nil, fmt.Errorf("%w: missing account count", ErrInvalidStateData)
	}
	numAccounts := int(binary.BigEndian.Uint32(data[offset : offset+accountCountSize]))
	offset += accountCountSize

	if minSize := offset + numAccounts*(accountFixedSize+bigLenSize); numAccounts < 0 || len(data) < minSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes for %d accounts, got %d",
			ErrInvalidStateData, minSize, numAccounts, len(data))
	}

	s.Accounts = make([]AccountState, numAccounts)
	for i := 0; i < numAccounts; i++ {
		if len(data) < offset+accountFixedSize {
			return nil, fmt.Errorf("%w: truncated account %d", ErrInvalidStateData, i)
		}
		a := &s.Accounts[i]
		copy(a.Address[:], data[offset:offset+ledger.AddressLen])
		offset += ledger.AddressLen
		flags := data[offset]
		offset++
		a.Withheld = binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
		a.Released = binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8

		if a.Correction, offset, err = readBig(data, offset); err != nil {
			return nil, err
		}
		if flags&flagNegativeCorrection != 0 {
			a.Correction.Neg(a.Correction)
		}
		a.EverHeld = flags&flagEverHeld != 0
	}

	if offset != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidStateData, len(data)-offset)
	}
	return s, nil
}

func appendBig(buf []byte, x *big.Int) ([]byte, error) {
	mag := x.Bytes()
	if len(mag) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: integer too large (%d bytes)", ErrInvalidStateData, len(mag))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(mag)))
	return append(buf, mag...), nil
}

func readBig(data []byte, offset int) (*big.Int, int, error) {
	if len(data) < offset+bigLenSize {
		return nil, offset, fmt.Errorf("%w: truncated integer length at %d", ErrInvalidStateData, offset)
	}
	n := int(binary.BigEndian.Uint16(data[offset : offset+bigLenSize]))
	offset += bigLenSize
	if len(data) < offset+n {
		return nil, offset, fmt.Errorf("%w: truncated integer at %d", ErrInvalidStateData, offset)
	}
	x := new(big.Int).SetBytes(data[offset : offset+n])
	return x, offset + n, nil
}
