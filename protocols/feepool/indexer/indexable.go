package indexer

import (
	"fmt"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/tidwall/btree"
)

// Indexer builds ordered indexes over fee pool registry views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed view of the registry snapshot.
func (i *Indexer) Index(view feepool.FeePoolRegistryView) IndexedFeePools {
	return NewIndexableFeePools(view)
}

// IndexableFeePools provides fast, ordered access to a fee pool registry view.
//
// The registry itself never searches for an insertion point; callers are
// expected to bring hints. This is where they get them: the btree answers
// predecessor and successor queries in O(log n) on a snapshot the caller owns.
type IndexableFeePools struct {
	byFee *btree.Map[feepool.FeeKey, feepool.FeePool]
	all   []feepool.FeePool
}

// NewIndexableFeePools indexes a deep copy of view.
func NewIndexableFeePools(view feepool.FeePoolRegistryView) *IndexableFeePools {
	owned := view.Clone()
	byFee := btree.NewMap[feepool.FeeKey, feepool.FeePool](32)
	for _, p := range owned.Pools {
		byFee.Set(p.Fee, p)
	}
	return &IndexableFeePools{
		byFee: byFee,
		all:   owned.Pools,
	}
}

// GetByFee retrieves a pool by its fee.
func (ip *IndexableFeePools) GetByFee(fee feepool.FeeKey) (feepool.FeePool, bool) {
	return ip.byFee.Get(fee)
}

// Hints returns the neighbours a pool with the given fee must be inserted
// between: the highest fee below it and the lowest fee above it, NoFee where
// there is none. The hints are only as fresh as the indexed view.
func (ip *IndexableFeePools) Hints(fee feepool.FeeKey) (feepool.FeeKey, feepool.FeeKey, error) {
	if fee == feepool.NoFee {
		return feepool.NoFee, feepool.NoFee, feepool.ErrReservedFee
	}
	if _, exists := ip.byFee.Get(fee); exists {
		return feepool.NoFee, feepool.NoFee, fmt.Errorf("%w: fee %d", feepool.ErrDuplicateFee, fee)
	}

	prevHint, nextHint := feepool.NoFee, feepool.NoFee
	ip.byFee.Descend(fee, func(k feepool.FeeKey, _ feepool.FeePool) bool {
		prevHint = k
		return false
	})
	ip.byFee.Ascend(fee, func(k feepool.FeeKey, _ feepool.FeePool) bool {
		nextHint = k
		return false
	})
	return prevHint, nextHint, nil
}

// Ascend calls fn for every pool with a fee of at least from, cheapest first,
// until fn returns false. This is the walk a router performs across tiers.
func (ip *IndexableFeePools) Ascend(from feepool.FeeKey, fn func(feepool.FeePool) bool) {
	ip.byFee.Ascend(from, func(_ feepool.FeeKey, p feepool.FeePool) bool {
		return fn(p)
	})
}

// Cheapest returns the pool with the lowest fee.
func (ip *IndexableFeePools) Cheapest() (feepool.FeePool, bool) {
	_, p, ok := ip.byFee.Min()
	return p, ok
}

// All returns a copy of every pool in ascending fee order.
func (ip *IndexableFeePools) All() []feepool.FeePool {
	allCopy := make([]feepool.FeePool, len(ip.all))
	copy(allCopy, ip.all)
	return allCopy
}

// Len returns the number of indexed pools.
func (ip *IndexableFeePools) Len() int {
	return ip.byFee.Len()
}
