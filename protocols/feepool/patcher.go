package feepool

import "fmt"

// Patcher constructs a new view by applying diff to prevState. prevState is
// not modified. The patched chain is validated before it is returned, so a
// diff applied to the wrong base state fails instead of producing a view
// with broken links.
func Patcher(prevState FeePoolRegistryView, diff FeePoolRegistryDiff) (FeePoolRegistryView, error) {
	poolMap := make(map[FeeKey]FeePool, len(prevState.Pools)+len(diff.Additions))
	for _, p := range prevState.Pools {
		poolMap[p.Fee] = copyPool(p)
	}

	for _, fee := range diff.Deletions {
		if _, exists := poolMap[fee]; !exists {
			return FeePoolRegistryView{}, fmt.Errorf("feepool patcher: deletion of unknown fee %d", fee)
		}
		delete(poolMap, fee)
	}

	for _, p := range diff.Updates {
		if _, exists := poolMap[p.Fee]; !exists {
			return FeePoolRegistryView{}, fmt.Errorf("feepool patcher: update of unknown fee %d", p.Fee)
		}
		poolMap[p.Fee] = copyPool(p)
	}

	for _, p := range diff.Additions {
		poolMap[p.Fee] = copyPool(p)
	}

	pools := make([]FeePool, 0, len(poolMap))
	for _, p := range poolMap {
		pools = append(pools, p)
	}

	registry, err := NewFeePoolRegistryFromView(&FeePoolRegistryView{
		Pools:      pools,
		LowestFee:  diff.LowestFee,
		HighestFee: diff.HighestFee,
		PoolCount:  diff.PoolCount,
	})
	if err != nil {
		return FeePoolRegistryView{}, fmt.Errorf("feepool patcher: %w", err)
	}
	return *registry.view(), nil
}
