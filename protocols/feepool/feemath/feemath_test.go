package feemath

import (
	"math/big"
	"testing"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFee(t *testing.T) {
	maxUint256 := new(uint256.Int).SetAllOne()

	testCases := []struct {
		name        string
		amount      *uint256.Int
		rate        feepool.Rate
		expected    *uint256.Int
		expectedErr error
	}{
		{name: "0.3% of 1 USDC", amount: uint256.NewInt(1_000_000), rate: 300, expected: uint256.NewInt(3000)},
		{name: "Rounds Down", amount: uint256.NewInt(999), rate: 300, expected: uint256.NewInt(2)},
		{name: "Zero Rate", amount: uint256.NewInt(12345), rate: 0, expected: uint256.NewInt(0)},
		{name: "Full Rate Of Max Amount", amount: maxUint256, rate: feepool.FeeScale, expected: maxUint256},
		{name: "Rate Above 100%", amount: uint256.NewInt(1), rate: feepool.FeeScale + 1, expectedErr: ErrRateTooHigh},
		{name: "Nil Amount", amount: nil, rate: 300, expectedErr: ErrNilAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fee, err := ComputeFee(tc.amount, tc.rate)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Eq(fee), "expected %s, got %s", tc.expected, fee)
		})
	}
}

func TestComputeFeeBig(t *testing.T) {
	fee, err := ComputeFeeBig(big.NewInt(1_000_000), 500)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), fee.Int64())

	_, err = ComputeFeeBig(big.NewInt(-1), 500)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = ComputeFeeBig(tooBig, 500)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = ComputeFeeBig(nil, 500)
	assert.ErrorIs(t, err, ErrNilAmount)
}

func TestSplitFee(t *testing.T) {
	lp, protocol, err := SplitFee(uint256.NewInt(1001), 50_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), protocol.Uint64())
	assert.Equal(t, uint64(501), lp.Uint64())

	_, _, err = SplitFee(uint256.NewInt(1), feepool.FeeScale*2)
	assert.ErrorIs(t, err, ErrRateTooHigh)
}

func TestParseRate(t *testing.T) {
	testCases := []struct {
		input       string
		expected    feepool.Rate
		expectedErr error
	}{
		{input: "0.003", expected: 300},
		{input: "0.3%", expected: 300},
		{input: " 1% ", expected: 1000},
		{input: "0.00001", expected: 1},
		{input: "0", expected: 0},
		{input: "100%", expected: feepool.FeeScale},
		{input: "0.000001", expectedErr: ErrInvalidRate},
		{input: "-0.1", expectedErr: ErrInvalidRate},
		{input: "1.5", expectedErr: ErrRateTooHigh},
		{input: "abc", expectedErr: ErrInvalidRate},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			rate, err := ParseRate(tc.input)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rate)
		})
	}
}

func TestFeeKeyConversions(t *testing.T) {
	key, err := ParseFeeKey("0.05%")
	require.NoError(t, err)
	assert.Equal(t, feepool.FeeKey(50), key)

	_, err = ParseFeeKey("0%")
	assert.ErrorIs(t, err, feepool.ErrReservedFee)

	key, err = FeeKeyFromDecimal(decimal.RequireFromString("0.0001"))
	require.NoError(t, err)
	assert.Equal(t, feepool.FeeKey(10), key)

	assert.True(t, decimal.RequireFromString("0.003").Equal(Decimal(300)))
	assert.Equal(t, "0.3%", Percent(300))
	assert.Equal(t, "100%", Percent(feepool.FeeScale))
}
