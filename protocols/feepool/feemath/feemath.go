package feemath

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// scale is feepool.FeeScale as a uint256, i.e. 100%.
	scale = uint256.NewInt(feepool.FeeScale)

	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrNegativeAmount is returned when a big.Int amount is below zero.
	ErrNegativeAmount = errors.New("amount must be non-negative")
	// ErrOverflow is returned when an amount does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflows 256 bits")
	// ErrRateTooHigh is returned for a rate above 100%.
	ErrRateTooHigh = errors.New("rate exceeds 100%")
	// ErrInvalidRate is returned when a decimal rate is negative or not a
	// multiple of 1/FeeScale.
	ErrInvalidRate = errors.New("invalid rate")
)

// ComputeFee returns floor(amount * rate / FeeScale).
func ComputeFee(amount *uint256.Int, rate feepool.Rate) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if rate > feepool.FeeScale {
		return nil, fmt.Errorf("%w: %d", ErrRateTooHigh, rate)
	}
	// The 512-bit intermediate product cannot overflow; the quotient is at most amount.
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(rate)), scale)
	if overflow {
		return nil, ErrOverflow
	}
	return fee, nil
}

// ComputeFeeBig is ComputeFee over *big.Int, for callers holding JSON-decoded amounts.
func ComputeFeeBig(amount *big.Int, rate feepool.Rate) (*big.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	fee, err := ComputeFee(a, rate)
	if err != nil {
		return nil, err
	}
	return fee.ToBig(), nil
}

// SplitFee divides a collected fee into the liquidity providers' share and the
// protocol's share. The protocol share is rounded down, so lp+protocol == fee.
func SplitFee(fee *uint256.Int, protocolRate feepool.Rate) (lp, protocol *uint256.Int, err error) {
	protocol, err = ComputeFee(fee, protocolRate)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Sub(fee, protocol), protocol, nil
}

// RateFromDecimal converts a fraction (0.003 for 0.3%) into a scaled Rate.
func RateFromDecimal(d decimal.Decimal) (feepool.Rate, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidRate, d)
	}
	scaled := d.Shift(5)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is finer than 1/%d", ErrInvalidRate, d, feepool.FeeScale)
	}
	if scaled.GreaterThan(decimal.NewFromInt(feepool.FeeScale)) {
		return 0, fmt.Errorf("%w: %s", ErrRateTooHigh, d)
	}
	return feepool.Rate(scaled.IntPart()), nil
}

// FeeKeyFromDecimal converts a fraction into a FeeKey. A zero fee is rejected
// because NoFee never identifies a pool.
func FeeKeyFromDecimal(d decimal.Decimal) (feepool.FeeKey, error) {
	rate, err := RateFromDecimal(d)
	if err != nil {
		return feepool.NoFee, err
	}
	if rate == 0 {
		return feepool.NoFee, feepool.ErrReservedFee
	}
	return feepool.FeeKey(rate), nil
}

// ParseRate parses "0.003" or "0.3%".
func ParseRate(s string) (feepool.Rate, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "%")))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidRate, s, err)
	}
	if percent {
		d = d.Shift(-2)
	}
	return RateFromDecimal(d)
}

// ParseFeeKey parses a fee tier in the same formats as ParseRate.
func ParseFeeKey(s string) (feepool.FeeKey, error) {
	rate, err := ParseRate(s)
	if err != nil {
		return feepool.NoFee, err
	}
	if rate == 0 {
		return feepool.NoFee, feepool.ErrReservedFee
	}
	return feepool.FeeKey(rate), nil
}

// Decimal returns a scaled rate as a fraction.
func Decimal(rate feepool.Rate) decimal.Decimal {
	return decimal.New(int64(rate), -5)
}

// Percent formats a scaled rate as a percentage, e.g. "0.3%".
func Percent(rate feepool.Rate) string {
	return Decimal(rate).Shift(2).String() + "%"
}
