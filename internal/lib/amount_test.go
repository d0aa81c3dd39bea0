package lib

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("10")
	require.NoError(t, err)
	require.Equal(t, "10", d.String())

	d, err = ParseAmount("0.000000000000000001")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), ToWei(d))

	_, err = ParseAmount("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("-1")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("0.0000000000000000001")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseAmountBounds(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	d, err := ParseAmount("115792089237316195423570985008687907853269984665640564039457.584007913129639935")
	require.NoError(t, err)
	require.Zero(t, maxUint256.Cmp(ToWei(d)))

	d, err = ParseAmount("1.000000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1", d.String())

	d, err = ParseAmount("0e-50000000")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	for _, s := range []string{
		"115792089237316195423570985008687907853269984665640564039457.584007913129639936",
		"1e60",
		"1e50000000",
		"1e-50000000",
		"1e-19",
	} {
		start := time.Now()
		_, err := ParseAmount(s)
		require.ErrorIs(t, err, ErrInvalidAmount, s)
		require.Less(t, time.Since(start), time.Second, s)
	}
}

func TestParsePositiveAmountRejectsZero(t *testing.T) {
	_, err := ParsePositiveAmount("0")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParsePositiveAmount("0.5")
	require.NoError(t, err)
}

func TestWeiConversion(t *testing.T) {
	d, err := ParseAmount("5")
	require.NoError(t, err)

	wei := ToWei(d)
	require.Equal(t, "5000000000000000000", wei.String())
	require.Equal(t, "5", FormatWei(wei))
	require.Equal(t, "0", FormatWei(nil))
}

func TestWithBuffer(t *testing.T) {
	reward := ToWei(mustAmount(t, "5"))
	require.Equal(t, "5500000000000000000", WithBuffer(reward, 110).String())

	require.Equal(t, big.NewInt(2), WithBuffer(big.NewInt(1), 110), "rounds up")
	require.Equal(t, big.NewInt(11), WithBuffer(big.NewInt(10), 110))
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	d, err := ParseAmount(s)
	require.NoError(t, err)
	return d
}
