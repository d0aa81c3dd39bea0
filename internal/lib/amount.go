package lib

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// TokenDecimals is the fixed-point precision of on-chain reward amounts
	TokenDecimals = 18
	// maxWeiDigits is the number of decimal digits of the largest uint256
	maxWeiDigits = 78
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a human readable decimal amount, rejecting negative values,
// values with more precision than TokenDecimals and values that do not fit a uint256 in wei.
// The exponent is bounded before any rescaling, so inputs like "1e50000000" fail fast.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, WrapError(ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("negative amount %s", s))
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}

	// digits of the coefficient occupy the positions exponent .. exponent+digits-1
	exp, digits := int64(d.Exponent()), int64(len(d.Coefficient().String()))
	if exp+digits > maxWeiDigits-TokenDecimals {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("amount %s is too large", s))
	}
	if exp+digits-1 < -TokenDecimals {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("more than %d decimal places in %s", TokenDecimals, s))
	}

	if d.Exponent() < -TokenDecimals && !d.Equal(d.Truncate(TokenDecimals)) {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("more than %d decimal places in %s", TokenDecimals, s))
	}
	if ToWei(d).BitLen() > 256 {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("amount %s is too large", s))
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount that also rejects zero
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, WrapError(ErrInvalidAmount, fmt.Errorf("amount must be greater than 0, got %s", s))
	}
	return d, nil
}

func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}

func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}

// FormatWei renders a wei amount as a decimal string without trailing zeros
func FormatWei(wei *big.Int) string {
	return FromWei(wei).String()
}

// WithBuffer returns ceil(wei * percent / 100)
func WithBuffer(wei *big.Int, percent int64) *big.Int {
	num := new(big.Int).Mul(wei, big.NewInt(percent))
	q, r := new(big.Int).QuoRem(num, big.NewInt(100), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
