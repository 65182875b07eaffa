package feepool

import (
	"fmt"
	"math/big"
)

// FeePoolRegistry keeps fee pools in a doubly linked chain sorted by fee.
//
// The chain is expressed as fee-to-fee links stored inside the pools map,
// with LowestFee and HighestFee as entry points. Insertions are positioned by
// hints supplied by the caller; the registry only verifies them. Every method
// either applies its whole change or returns an error having changed nothing.
//
// FeePoolRegistry is not safe for concurrent use, see FeePoolSystem.
type FeePoolRegistry struct {
	pools      map[FeeKey]FeePool
	lowestFee  FeeKey
	highestFee FeeKey
	poolCount  uint64
}

// NewFeePoolRegistry creates an empty registry.
func NewFeePoolRegistry() *FeePoolRegistry {
	return &FeePoolRegistry{
		pools: make(map[FeeKey]FeePool),
	}
}

// NewFeePoolRegistryFromView rebuilds a registry from a snapshot. The view is
// deep copied and the resulting chain is validated, so a view that was
// tampered with or truncated in transit is rejected.
func NewFeePoolRegistryFromView(view *FeePoolRegistryView) (*FeePoolRegistry, error) {
	pools := make(map[FeeKey]FeePool, len(view.Pools))
	for _, p := range view.Pools {
		if _, exists := pools[p.Fee]; exists {
			return nil, fmt.Errorf("%w: fee %d listed twice", ErrCorruptChain, p.Fee)
		}
		pools[p.Fee] = copyPool(p)
	}

	r := &FeePoolRegistry{
		pools:      pools,
		lowestFee:  view.LowestFee,
		highestFee: view.HighestFee,
		poolCount:  view.PoolCount,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Insert adds pool at the position described by prevHint and nextHint, the
// fees of the pools that will become its lower and higher neighbours. NoFee
// on one side claims the new pool becomes the head or the tail; NoFee on both
// sides is only accepted for the first pool.
//
// The PrevFee and NextFee fields of pool are ignored and set by the registry.
func (r *FeePoolRegistry) Insert(pool FeePool, prevHint, nextHint FeeKey) error {
	fee := pool.Fee
	if fee == NoFee {
		return ErrReservedFee
	}
	// The duplicate check must come first: the adjacency checks below assume fee
	// is not already linked into the chain.
	if _, exists := r.pools[fee]; exists {
		return fmt.Errorf("%w: fee %d", ErrDuplicateFee, fee)
	}

	switch {
	case prevHint == NoFee && nextHint == NoFee:
		if r.poolCount != 0 {
			return fmt.Errorf("%w: head is %d", ErrFirstPoolAdded, r.lowestFee)
		}
		pool.PrevFee = NoFee
		pool.NextFee = NoFee
		r.lowestFee = fee
		r.highestFee = fee

	case prevHint == NoFee:
		next, ok := r.pools[nextHint]
		if !ok || nextHint != r.lowestFee || fee >= next.Fee {
			return fmt.Errorf("%w: fee %d, next %d, head %d", ErrNotFirst, fee, nextHint, r.lowestFee)
		}
		pool.PrevFee = NoFee
		pool.NextFee = nextHint
		next.PrevFee = fee
		r.pools[nextHint] = next
		r.lowestFee = fee

	case nextHint == NoFee:
		prev, ok := r.pools[prevHint]
		if !ok || prevHint != r.highestFee || fee <= prev.Fee {
			return fmt.Errorf("%w: fee %d, prev %d, tail %d", ErrNotLast, fee, prevHint, r.highestFee)
		}
		pool.PrevFee = prevHint
		pool.NextFee = NoFee
		prev.NextFee = fee
		r.pools[prevHint] = prev
		r.highestFee = fee

	default:
		prev, prevOK := r.pools[prevHint]
		next, nextOK := r.pools[nextHint]
		if !prevOK || !nextOK ||
			prev.NextFee != nextHint || next.PrevFee != prevHint ||
			prev.Fee >= fee || fee >= next.Fee {
			return fmt.Errorf("%w: fee %d, prev %d, next %d", ErrNotBetween, fee, prevHint, nextHint)
		}
		pool.PrevFee = prevHint
		pool.NextFee = nextHint
		prev.NextFee = fee
		next.PrevFee = fee
		r.pools[prevHint] = prev
		r.pools[nextHint] = next
	}

	r.pools[fee] = copyPool(pool)
	r.poolCount++
	return nil
}

// Delete removes the pool with the given fee and links its neighbours to each other.
func (r *FeePoolRegistry) Delete(fee FeeKey) error {
	pool, ok := r.pools[fee]
	if !ok {
		return fmt.Errorf("%w: fee %d", ErrPoolNotFound, fee)
	}

	prevFee, nextFee := pool.PrevFee, pool.NextFee
	if prevFee != NoFee {
		prev := r.pools[prevFee]
		prev.NextFee = nextFee
		r.pools[prevFee] = prev
	} else {
		r.lowestFee = nextFee
	}
	if nextFee != NoFee {
		next := r.pools[nextFee]
		next.PrevFee = prevFee
		r.pools[nextFee] = next
	} else {
		r.highestFee = prevFee
	}

	delete(r.pools, fee)
	r.poolCount--
	return nil
}

// Get returns a copy of the pool with the given fee. An absent pool is
// reported as the zero FeePool and false.
func (r *FeePoolRegistry) Get(fee FeeKey) (FeePool, bool) {
	pool, ok := r.pools[fee]
	if !ok {
		return FeePool{}, false
	}
	return copyPool(pool), true
}

// UpdateProtocolFee overwrites the protocol fee of an existing pool.
func (r *FeePoolRegistry) UpdateProtocolFee(fee FeeKey, rate Rate) error {
	pool, ok := r.pools[fee]
	if !ok {
		return fmt.Errorf("%w: fee %d", ErrPoolNotFound, fee)
	}
	pool.ProtocolFee = rate
	r.pools[fee] = pool
	return nil
}

// UpdateLiquidity overwrites the liquidity payload of an existing pool.
func (r *FeePoolRegistry) UpdateLiquidity(fee FeeKey, liquidity *big.Int) error {
	pool, ok := r.pools[fee]
	if !ok {
		return fmt.Errorf("%w: fee %d", ErrPoolNotFound, fee)
	}
	if liquidity == nil {
		pool.Liquidity = nil
	} else {
		pool.Liquidity = new(big.Int).Set(liquidity)
	}
	r.pools[fee] = pool
	return nil
}

func (r *FeePoolRegistry) LowestFee() FeeKey  { return r.lowestFee }
func (r *FeePoolRegistry) HighestFee() FeeKey { return r.highestFee }
func (r *FeePoolRegistry) PoolCount() uint64  { return r.poolCount }

// Walk calls fn for every pool from the cheapest to the most expensive until
// fn returns false. fn receives copies and may not mutate the registry.
func (r *FeePoolRegistry) Walk(fn func(FeePool) bool) {
	for fee := r.lowestFee; fee != NoFee; {
		pool := r.pools[fee]
		if !fn(copyPool(pool)) {
			return
		}
		fee = pool.NextFee
	}
}

// Validate walks the chain in both directions and checks every invariant the
// registry maintains. It returns an error wrapping ErrCorruptChain on the
// first violation found.
func (r *FeePoolRegistry) Validate() error {
	if uint64(len(r.pools)) != r.poolCount {
		return fmt.Errorf("%w: %d pools stored, count is %d", ErrCorruptChain, len(r.pools), r.poolCount)
	}
	if _, exists := r.pools[NoFee]; exists {
		return fmt.Errorf("%w: reserved fee key is stored", ErrCorruptChain)
	}
	if r.poolCount == 0 {
		if r.lowestFee != NoFee || r.highestFee != NoFee {
			return fmt.Errorf("%w: empty registry has lowest %d and highest %d", ErrCorruptChain, r.lowestFee, r.highestFee)
		}
		return nil
	}

	// forward: lowest -> highest
	var (
		steps   uint64
		prevFee = NoFee
	)
	for fee := r.lowestFee; fee != NoFee; steps++ {
		if steps == r.poolCount {
			return fmt.Errorf("%w: forward walk exceeds %d pools", ErrCorruptChain, r.poolCount)
		}
		pool, ok := r.pools[fee]
		if !ok {
			return fmt.Errorf("%w: link to missing fee %d", ErrCorruptChain, fee)
		}
		if pool.Fee != fee {
			return fmt.Errorf("%w: pool stored under %d has fee %d", ErrCorruptChain, fee, pool.Fee)
		}
		if pool.PrevFee != prevFee {
			return fmt.Errorf("%w: fee %d links back to %d, expected %d", ErrCorruptChain, fee, pool.PrevFee, prevFee)
		}
		if prevFee != NoFee && prevFee >= fee {
			return fmt.Errorf("%w: fee %d follows %d", ErrCorruptChain, fee, prevFee)
		}
		prevFee = fee
		fee = pool.NextFee
	}
	if steps != r.poolCount {
		return fmt.Errorf("%w: forward walk visits %d of %d pools", ErrCorruptChain, steps, r.poolCount)
	}
	if prevFee != r.highestFee {
		return fmt.Errorf("%w: chain ends at %d, highest is %d", ErrCorruptChain, prevFee, r.highestFee)
	}

	// backward: highest -> lowest
	steps = 0
	var last FeeKey
	for fee := r.highestFee; fee != NoFee; steps++ {
		if steps == r.poolCount {
			return fmt.Errorf("%w: backward walk exceeds %d pools", ErrCorruptChain, r.poolCount)
		}
		last = fee
		fee = r.pools[fee].PrevFee
	}
	if steps != r.poolCount || last != r.lowestFee {
		return fmt.Errorf("%w: backward walk ends at %d after %d steps", ErrCorruptChain, last, steps)
	}
	return nil
}

// view returns a deep copy of the registry with pools in chain order.
func (r *FeePoolRegistry) view() *FeePoolRegistryView {
	pools := make([]FeePool, 0, r.poolCount)
	r.Walk(func(p FeePool) bool {
		pools = append(pools, p)
		return true
	})
	return &FeePoolRegistryView{
		Pools:      pools,
		LowestFee:  r.lowestFee,
		HighestFee: r.highestFee,
		PoolCount:  r.poolCount,
	}
}
