package feepool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = common.HexToAddress("0x3000000000000000000000000000000000000000")

func newTestPool(fee FeeKey) FeePool {
	return FeePool{
		Fee:         fee,
		ProtocolFee: 1,
		Liquidity:   big.NewInt(0),
		Queue:       testToken,
		Factory:     testToken,
		Token:       testToken,
	}
}

// chainOrder walks the registry forward and returns the fees it visits.
func chainOrder(r *FeePoolRegistry) []FeeKey {
	var fees []FeeKey
	r.Walk(func(p FeePool) bool {
		fees = append(fees, p.Fee)
		return true
	})
	return fees
}

// reverseOrder walks the registry backward from the highest fee.
func reverseOrder(r *FeePoolRegistry) []FeeKey {
	var fees []FeeKey
	for fee := r.HighestFee(); fee != NoFee; {
		p, ok := r.Get(fee)
		if !ok {
			break
		}
		fees = append(fees, fee)
		fee = p.PrevFee
	}
	return fees
}

// cloneRegistry returns a deep copy of r for before/after comparisons.
func cloneRegistry(r *FeePoolRegistry) *FeePoolRegistry {
	pools := make(map[FeeKey]FeePool, len(r.pools))
	for k, v := range r.pools {
		pools[k] = copyPool(v)
	}
	return &FeePoolRegistry{
		pools:      pools,
		lowestFee:  r.lowestFee,
		highestFee: r.highestFee,
		poolCount:  r.poolCount,
	}
}

// newMockRegistry builds the 10, 20, 25 registry used by most cases.
func newMockRegistry(t *testing.T) *FeePoolRegistry {
	t.Helper()
	r := NewFeePoolRegistry()
	require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
	require.NoError(t, r.Insert(newTestPool(20), 10, NoFee))
	require.NoError(t, r.Insert(newTestPool(25), 20, NoFee))
	return r
}

func TestFeePoolRegistry_Insert(t *testing.T) {

	t.Run("FirstPool", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))

		assert.Equal(t, FeeKey(10), r.LowestFee())
		assert.Equal(t, FeeKey(10), r.HighestFee())
		assert.Equal(t, uint64(1), r.PoolCount())

		p, ok := r.Get(10)
		require.True(t, ok)
		assert.Equal(t, NoFee, p.PrevFee)
		assert.Equal(t, NoFee, p.NextFee)
		require.NoError(t, r.Validate())
	})

	t.Run("Head", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Insert(newTestPool(5), NoFee, 10))

		assert.Equal(t, []FeeKey{5, 10}, chainOrder(r))
		assert.Equal(t, FeeKey(5), r.LowestFee())
		require.NoError(t, r.Validate())

		require.NoError(t, r.Insert(newTestPool(1), NoFee, 5))
		assert.Equal(t, FeeKey(1), r.LowestFee())
		assert.Equal(t, []FeeKey{1, 5, 10}, chainOrder(r))
	})

	t.Run("Tail", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Insert(newTestPool(20), 10, NoFee))
		assert.Equal(t, FeeKey(20), r.HighestFee())
		require.NoError(t, r.Insert(newTestPool(25), 20, NoFee))
		assert.Equal(t, FeeKey(25), r.HighestFee())

		assert.Equal(t, []FeeKey{10, 20, 25}, chainOrder(r))
		require.NoError(t, r.Validate())
	})

	t.Run("Middle", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Insert(newTestPool(25), 10, NoFee))
		assert.Equal(t, uint64(2), r.PoolCount())
		require.NoError(t, r.Insert(newTestPool(20), 10, 25))
		assert.Equal(t, uint64(3), r.PoolCount())

		assert.Equal(t, []FeeKey{10, 20, 25}, chainOrder(r))
		assert.Equal(t, []FeeKey{25, 20, 10}, reverseOrder(r))
		require.NoError(t, r.Validate())
	})

	t.Run("IgnoresCallerLinks", func(t *testing.T) {
		r := NewFeePoolRegistry()
		pool := newTestPool(10)
		pool.PrevFee = 3
		pool.NextFee = 99
		require.NoError(t, r.Insert(pool, NoFee, NoFee))

		p, _ := r.Get(10)
		assert.Equal(t, NoFee, p.PrevFee)
		assert.Equal(t, NoFee, p.NextFee)
	})

	t.Run("PayloadIsStoredUnmodified", func(t *testing.T) {
		r := NewFeePoolRegistry()
		pool := newTestPool(10)
		pool.Liquidity = big.NewInt(12345)
		pool.QueueLength = 7
		require.NoError(t, r.Insert(pool, NoFee, NoFee))

		// mutating the caller's copy must not leak into the registry
		pool.Liquidity.SetInt64(1)

		p, _ := r.Get(10)
		assert.Equal(t, int64(12345), p.Liquidity.Int64())
		assert.Equal(t, uint64(7), p.QueueLength)
		assert.Equal(t, testToken, p.Token)
	})
}

func TestFeePoolRegistry_InsertRejections(t *testing.T) {
	testCases := []struct {
		name     string
		existing []FeeKey // inserted in ascending order at the tail
		fee      FeeKey
		prevHint FeeKey
		nextHint FeeKey
		wantErr  error
	}{
		{name: "first pool twice", existing: []FeeKey{10}, fee: 15, wantErr: ErrFirstPoolAdded},
		{name: "duplicate fee with middle hints", existing: []FeeKey{10, 15}, fee: 15, prevHint: 10, nextHint: 15, wantErr: ErrDuplicateFee},
		{name: "duplicate fee with empty hints", existing: []FeeKey{10}, fee: 10, wantErr: ErrDuplicateFee},
		{name: "head above current head", existing: []FeeKey{10}, fee: 15, nextHint: 10, wantErr: ErrNotFirst},
		{name: "head hint is not the head", existing: []FeeKey{10, 20}, fee: 15, nextHint: 20, wantErr: ErrNotFirst},
		{name: "head hint on empty registry", fee: 5, nextHint: 10, wantErr: ErrNotFirst},
		{name: "tail below current tail", existing: []FeeKey{10}, fee: 5, prevHint: 10, wantErr: ErrNotLast},
		{name: "tail hint is not the tail", existing: []FeeKey{10, 20}, fee: 25, prevHint: 10, wantErr: ErrNotLast},
		{name: "tail hint on empty registry", fee: 15, prevHint: 10, wantErr: ErrNotLast},
		{name: "wrong prev value", existing: []FeeKey{10, 20}, fee: 25, prevHint: 1, nextHint: 25, wantErr: ErrNotBetween},
		{name: "wrong next value", existing: []FeeKey{10, 20}, fee: 15, prevHint: 10, nextHint: 25, wantErr: ErrNotBetween},
		{name: "hints not adjacent", existing: []FeeKey{10, 20, 30}, fee: 15, prevHint: 10, nextHint: 30, wantErr: ErrNotBetween},
		{name: "fee outside bracket", existing: []FeeKey{10, 20}, fee: 25, prevHint: 10, nextHint: 20, wantErr: ErrNotBetween},
		{name: "reversed hints", existing: []FeeKey{10, 20}, fee: 15, prevHint: 20, nextHint: 10, wantErr: ErrNotBetween},
		{name: "same hint twice", existing: []FeeKey{10, 20}, fee: 15, prevHint: 10, nextHint: 10, wantErr: ErrNotBetween},
		{name: "reserved fee", existing: []FeeKey{10}, fee: NoFee, wantErr: ErrReservedFee},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewFeePoolRegistry()
			prev := NoFee
			for _, fee := range tc.existing {
				require.NoError(t, r.Insert(newTestPool(fee), prev, NoFee))
				prev = fee
			}
			before := cloneRegistry(r)

			err := r.Insert(newTestPool(tc.fee), tc.prevHint, tc.nextHint)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, before, r, "a rejected insert must leave the registry unchanged")
		})
	}
}

func TestFeePoolRegistry_Delete(t *testing.T) {

	t.Run("Missing", func(t *testing.T) {
		r := newMockRegistry(t)
		before := cloneRegistry(r)
		err := r.Delete(15)
		assert.ErrorIs(t, err, ErrPoolNotFound)
		assert.Equal(t, before, r)
	})

	t.Run("Head", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(10))

		p, ok := r.Get(10)
		assert.False(t, ok)
		assert.Equal(t, common.Address{}, p.Token)
		assert.Equal(t, []FeeKey{20, 25}, chainOrder(r))
		assert.Equal(t, FeeKey(20), r.LowestFee())
		require.NoError(t, r.Validate())
	})

	t.Run("Middle", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(20))

		_, ok := r.Get(20)
		assert.False(t, ok)
		assert.Equal(t, []FeeKey{10, 25}, chainOrder(r))
		assert.Equal(t, []FeeKey{25, 10}, reverseOrder(r))
		assert.Equal(t, uint64(2), r.PoolCount())
		require.NoError(t, r.Validate())
	})

	t.Run("Tail", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(25))

		_, ok := r.Get(25)
		assert.False(t, ok)
		assert.Equal(t, []FeeKey{10, 20}, chainOrder(r))
		assert.Equal(t, FeeKey(20), r.HighestFee())
		require.NoError(t, r.Validate())
	})

	t.Run("LowestFeeFollowsDeletes", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(10))
		assert.Equal(t, FeeKey(20), r.LowestFee())
		require.NoError(t, r.Delete(20))
		assert.Equal(t, FeeKey(25), r.LowestFee())
		require.NoError(t, r.Delete(25))
		assert.Equal(t, NoFee, r.LowestFee())
	})

	t.Run("HighestFeeFollowsDeletes", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(25))
		assert.Equal(t, FeeKey(20), r.HighestFee())
		require.NoError(t, r.Delete(20))
		assert.Equal(t, FeeKey(10), r.HighestFee())
		require.NoError(t, r.Delete(10))
		assert.Equal(t, NoFee, r.HighestFee())
	})

	t.Run("PoolCountFollowsDeletes", func(t *testing.T) {
		r := newMockRegistry(t)
		for i, fee := range []FeeKey{10, 20, 25} {
			require.NoError(t, r.Delete(fee))
			assert.Equal(t, uint64(2-i), r.PoolCount())
		}
	})

	t.Run("LastPoolResetsAggregates", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Delete(10))

		assert.Equal(t, NoFee, r.LowestFee())
		assert.Equal(t, NoFee, r.HighestFee())
		assert.Equal(t, uint64(0), r.PoolCount())
		require.NoError(t, r.Validate())

		assert.ErrorIs(t, r.Delete(10), ErrPoolNotFound)

		// the registry accepts a first pool again
		require.NoError(t, r.Insert(newTestPool(7), NoFee, NoFee))
		assert.Equal(t, FeeKey(7), r.LowestFee())
	})
}

func TestFeePoolRegistry_InsertDeleteRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		fee      FeeKey
		prevHint FeeKey
		nextHint FeeKey
	}{
		{name: "head", fee: 5, nextHint: 10},
		{name: "middle", fee: 15, prevHint: 10, nextHint: 20},
		{name: "tail", fee: 30, prevHint: 25},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newMockRegistry(t)
			before := cloneRegistry(r)

			require.NoError(t, r.Insert(newTestPool(tc.fee), tc.prevHint, tc.nextHint))
			require.NoError(t, r.Delete(tc.fee))
			assert.Equal(t, before, r)
		})
	}
}

func TestFeePoolRegistry_Get(t *testing.T) {
	r := newMockRegistry(t)

	p, ok := r.Get(20)
	require.True(t, ok)
	assert.Equal(t, FeeKey(20), p.Fee)
	assert.Equal(t, FeeKey(10), p.PrevFee)
	assert.Equal(t, FeeKey(25), p.NextFee)

	p, ok = r.Get(21)
	assert.False(t, ok)
	assert.True(t, p.IsZero())

	_, ok = r.Get(NoFee)
	assert.False(t, ok)
}

func TestFeePoolRegistry_Updates(t *testing.T) {

	t.Run("ProtocolFee", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.UpdateProtocolFee(10, 20))

		p, _ := r.Get(10)
		assert.Equal(t, Rate(20), p.ProtocolFee)
		assert.Equal(t, []FeeKey{10, 20, 25}, chainOrder(r), "ordering must not change")
		assert.ErrorIs(t, r.UpdateProtocolFee(11, 1), ErrPoolNotFound)
	})

	t.Run("Liquidity", func(t *testing.T) {
		r := newMockRegistry(t)
		liq := big.NewInt(500)
		require.NoError(t, r.UpdateLiquidity(20, liq))
		liq.SetInt64(1)

		p, _ := r.Get(20)
		assert.Equal(t, int64(500), p.Liquidity.Int64())
		assert.ErrorIs(t, r.UpdateLiquidity(11, big.NewInt(1)), ErrPoolNotFound)
	})
}

func TestFeePoolRegistry_Walk(t *testing.T) {
	r := newMockRegistry(t)

	var seen []FeeKey
	r.Walk(func(p FeePool) bool {
		seen = append(seen, p.Fee)
		return p.Fee < 20
	})
	assert.Equal(t, []FeeKey{10, 20}, seen, "walk stops when fn returns false")
}

func TestFeePoolRegistry_FromView(t *testing.T) {

	t.Run("RoundTrip", func(t *testing.T) {
		r := newMockRegistry(t)
		restored, err := NewFeePoolRegistryFromView(r.view())
		require.NoError(t, err)
		assert.Equal(t, r, restored)
	})

	t.Run("RejectsCorruptViews", func(t *testing.T) {
		testCases := []struct {
			name   string
			mutate func(v *FeePoolRegistryView)
		}{
			{"wrong count", func(v *FeePoolRegistryView) { v.PoolCount = 2 }},
			{"wrong lowest", func(v *FeePoolRegistryView) { v.LowestFee = 20 }},
			{"wrong highest", func(v *FeePoolRegistryView) { v.HighestFee = 20 }},
			{"broken back link", func(v *FeePoolRegistryView) { v.Pools[1].PrevFee = 25 }},
			{"broken forward link", func(v *FeePoolRegistryView) { v.Pools[0].NextFee = 25 }},
			{"missing pool", func(v *FeePoolRegistryView) { v.Pools = v.Pools[:2] }},
			{"duplicated pool", func(v *FeePoolRegistryView) { v.Pools[2] = v.Pools[1] }},
			{"cycle", func(v *FeePoolRegistryView) { v.Pools[2].NextFee = 10 }},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				view := newMockRegistry(t).view()
				tc.mutate(view)
				_, err := NewFeePoolRegistryFromView(view)
				assert.ErrorIs(t, err, ErrCorruptChain)
			})
		}
	})

	t.Run("Empty", func(t *testing.T) {
		r, err := NewFeePoolRegistryFromView(&FeePoolRegistryView{})
		require.NoError(t, err)
		assert.Equal(t, uint64(0), r.PoolCount())

		_, err = NewFeePoolRegistryFromView(&FeePoolRegistryView{LowestFee: 10})
		assert.ErrorIs(t, err, ErrCorruptChain)
	})
}

// The scenarios below mirror the worked examples the registry is specified with.
func TestFeePoolRegistry_Scenarios(t *testing.T) {

	t.Run("A_FirstInsert", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		assert.Equal(t, FeeKey(10), r.LowestFee())
		assert.Equal(t, FeeKey(10), r.HighestFee())
		assert.Equal(t, uint64(1), r.PoolCount())
	})

	t.Run("B_NewHead", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Insert(newTestPool(5), NoFee, 10))
		assert.Equal(t, []FeeKey{5, 10}, chainOrder(r))
		assert.Equal(t, FeeKey(5), r.LowestFee())
	})

	t.Run("C_HeadClaimAboveHead", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		assert.ErrorIs(t, r.Insert(newTestPool(15), NoFee, 10), ErrNotFirst)
	})

	t.Run("D_UnknownPrevHint", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Insert(newTestPool(20), 10, NoFee))
		assert.ErrorIs(t, r.Insert(newTestPool(25), 1, 25), ErrNotBetween)
	})

	t.Run("E_DeleteMiddle", func(t *testing.T) {
		r := newMockRegistry(t)
		require.NoError(t, r.Delete(20))
		assert.Equal(t, []FeeKey{10, 25}, chainOrder(r))
		assert.Equal(t, uint64(2), r.PoolCount())
		_, ok := r.Get(20)
		assert.False(t, ok)
	})

	t.Run("F_DeleteOnlyPool", func(t *testing.T) {
		r := NewFeePoolRegistry()
		require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))
		require.NoError(t, r.Delete(10))
		assert.Equal(t, NoFee, r.LowestFee())
		assert.Equal(t, NoFee, r.HighestFee())
		assert.Equal(t, uint64(0), r.PoolCount())
		assert.ErrorIs(t, r.Delete(10), ErrPoolNotFound)
	})
}

func TestReason(t *testing.T) {
	r := NewFeePoolRegistry()
	require.NoError(t, r.Insert(newTestPool(10), NoFee, NoFee))

	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "first_pool_added", Reason(r.Insert(newTestPool(20), NoFee, NoFee)))
	assert.Equal(t, "duplicate_fee", Reason(r.Insert(newTestPool(10), NoFee, NoFee)))
	assert.Equal(t, "not_first", Reason(r.Insert(newTestPool(20), NoFee, 10)))
	assert.Equal(t, "not_last", Reason(r.Insert(newTestPool(5), 10, NoFee)))
	assert.Equal(t, "not_between", Reason(r.Insert(newTestPool(5), 1, 10)))
	assert.Equal(t, "not_found", Reason(r.Delete(99)))
	assert.Equal(t, "reserved_fee", Reason(r.Insert(newTestPool(NoFee), NoFee, NoFee)))
}
