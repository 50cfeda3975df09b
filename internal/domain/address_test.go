package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got)

	// Surrounding whitespace is tolerated.
	got, err = NormalizeAddress("  0xabcdef0123456789abcdef0123456789abcdef01\n")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got)

	for _, bad := range []string{
		"",
		"abcdef0123456789abcdef0123456789abcdef01", // no prefix
		"0x1234",    // too short
		"0xzzcdef0123456789abcdef0123456789abcdef01", // not hex
		"0xabcdef0123456789abcdef0123456789abcdef0100", // too long
	} {
		_, err := NormalizeAddress(bad)
		require.Error(t, err, "address %q", bad)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", got.String())

	got, err = ParseAmount(" 0 ")
	require.NoError(t, err)
	require.Equal(t, 0, got.Sign())

	for _, bad := range []string{"", "-1", "1.5", "0x10", "ten"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, "amount %q", bad)
	}
}

func TestAmountString(t *testing.T) {
	require.Equal(t, "0", AmountString(nil))
	require.Equal(t, "42", AmountString(big.NewInt(42)))
}
