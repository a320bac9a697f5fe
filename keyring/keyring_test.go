package keyring

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libdividends-go/ledger"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testKeyring(t *testing.T) *Keyring {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	k, err := New(seed, false)
	require.NoError(t, err)
	return k
}

func TestGenerateMnemonic(t *testing.T) {
	for bits, words := range map[int]int{Mnemonic12Words: 12, Mnemonic24Words: 24} {
		m, err := GenerateMnemonic(bits)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(m), words)

		_, err = SeedFromMnemonic(m, "")
		assert.NoError(t, err)
	}

	_, err := GenerateMnemonic(192)
	assert.ErrorIs(t, err, ErrInvalidEntropy)
}

func TestSeedFromMnemonic(t *testing.T) {
	a, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := SeedFromMnemonic(testMnemonic, "extra")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = SeedFromMnemonic("foo bar baz", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestEncryptDecryptSeed(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	enc, err := EncryptSeed(seed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, byte(formatV1), enc[0])

	got, err := DecryptSeed(enc, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = DecryptSeed(enc, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	tampered := append([]byte{}, enc...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = DecryptSeed(tampered, "hunter2")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	badVersion := append([]byte{}, enc...)
	badVersion[0] = 0x02
	_, err = DecryptSeed(badVersion, "hunter2")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecryptSeed(enc[:10], "hunter2")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = EncryptSeed(nil, "x")
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestKeyring_Keys(t *testing.T) {
	k := testKeyring(t)
	a := ledger.Address{0x01, 0x02, 0x03, 0x04}
	b := ledger.Address{0x05, 0x06, 0x07, 0x08}

	fee, err := k.FeeKey()
	require.NoError(t, err)
	poolA, err := k.PoolKey(a)
	require.NoError(t, err)
	poolB, err := k.PoolKey(b)
	require.NoError(t, err)

	assert.NotEqual(t, fee.Serialize(), poolA.Serialize())
	assert.NotEqual(t, poolA.Serialize(), poolB.Serialize())

	again, err := testKeyring(t).PoolKey(a)
	require.NoError(t, err)
	assert.Equal(t, poolA.Serialize(), again.Serialize())
}

func TestPoolAccount(t *testing.T) {
	tests := []ledger.Address{
		{},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x7F, 0xFF, 0xFF, 0xFE},
		{0x12, 0x34, 0x56, 0x78},
	}
	for _, addr := range tests {
		acct := PoolAccount(addr)
		assert.NotEqual(t, uint32(feeAccount), acct)
		assert.Less(t, acct, uint32(hardened))
	}
}

func TestCreateOpen(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, "pw", false)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, Create(dir, testMnemonic, "pw"))
	assert.ErrorIs(t, Create(dir, testMnemonic, "pw"), ErrKeyringExists)

	k, err := Open(dir, "pw", false)
	require.NoError(t, err)
	want, err := testKeyring(t).FeeKey()
	require.NoError(t, err)
	got, err := k.FeeKey()
	require.NoError(t, err)
	assert.Equal(t, want.Serialize(), got.Serialize())

	_, err = Open(dir, "nope", false)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	assert.ErrorIs(t, Create(t.TempDir(), "not a mnemonic", "pw"), ErrInvalidMnemonic)
}

func TestNew_EmptySeed(t *testing.T) {
	_, err := New(nil, true)
	assert.ErrorIs(t, err, ErrInvalidSeed)
}
