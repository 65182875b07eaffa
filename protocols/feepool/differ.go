package feepool

import "math/big"

// FeePoolRegistryDiff describes how to go from one registry view to another.
// The aggregates always carry the values of the new view: they are cheap, and
// the patcher needs them to find the head of the rebuilt chain.
type FeePoolRegistryDiff struct {
	Additions  []FeePool `json:"additions,omitempty"`
	Updates    []FeePool `json:"updates,omitempty"`
	Deletions  []FeeKey  `json:"deletions,omitempty"`
	LowestFee  FeeKey    `json:"lowestFee"`
	HighestFee FeeKey    `json:"highestFee"`
	PoolCount  uint64    `json:"poolCount"`
}

// IsEmpty returns true if the diff contains no pool changes.
func (d FeePoolRegistryDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func poolChanged(old, new FeePool) bool {
	if old.PrevFee != new.PrevFee || old.NextFee != new.NextFee {
		return true
	}
	if old.ProtocolFee != new.ProtocolFee || old.QueueLength != new.QueueLength {
		return true
	}
	if old.Queue != new.Queue || old.Factory != new.Factory || old.Token != new.Token {
		return true
	}
	return !bigEqual(old.Liquidity, new.Liquidity)
}

// Differ calculates the difference between two registry views (old -> new).
// Pools are reported in the chain order of the view they come from, so the
// output is deterministic.
func Differ(old, new FeePoolRegistryView) FeePoolRegistryDiff {
	oldPools := make(map[FeeKey]FeePool, len(old.Pools))
	for _, p := range old.Pools {
		oldPools[p.Fee] = p
	}
	newPools := make(map[FeeKey]struct{}, len(new.Pools))

	var (
		additions []FeePool
		updates   []FeePool
		deletions []FeeKey
	)

	for _, p := range new.Pools {
		newPools[p.Fee] = struct{}{}
		oldPool, exists := oldPools[p.Fee]
		if !exists {
			additions = append(additions, copyPool(p))
			continue
		}
		if poolChanged(oldPool, p) {
			updates = append(updates, copyPool(p))
		}
	}

	for _, p := range old.Pools {
		if _, exists := newPools[p.Fee]; !exists {
			deletions = append(deletions, p.Fee)
		}
	}

	return FeePoolRegistryDiff{
		Additions:  additions,
		Updates:    updates,
		Deletions:  deletions,
		LowestFee:  new.LowestFee,
		HighestFee: new.HighestFee,
		PoolCount:  new.PoolCount,
	}
}
