package feepool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeScale is the factor every stored rate is multiplied by, i.e. a FeeKey of
// 300 is a 0.3% fee.
const FeeScale = 100000

// FeeKey is the scaled fee rate of a pool. It is both the unique identifier of
// a pool and the key the chain is sorted by.
type FeeKey uint64

// NoFee is the reserved key meaning "no neighbour" or "no entry".
const NoFee FeeKey = 0

// Rate returns the key as a plain scaled rate.
func (k FeeKey) Rate() Rate {
	return Rate(k)
}

// Rate is a scaled rate that does not take part in ordering, such as the
// protocol fee component of a pool.
type Rate uint64

// FeePool is a single fee tier.
//
// PrevFee and NextFee are owned by the registry and are rewritten whenever a
// neighbour is inserted or removed. Liquidity, Queue, Factory, Token and
// QueueLength are payload: the registry stores them but never interprets them.
type FeePool struct {
	Fee         FeeKey         `json:"fee"`
	PrevFee     FeeKey         `json:"prevFee"`
	NextFee     FeeKey         `json:"nextFee"`
	ProtocolFee Rate           `json:"protocolFee"`
	Liquidity   *big.Int       `json:"liquidity"`
	Queue       common.Address `json:"queue"`
	Factory     common.Address `json:"factory"`
	Token       common.Address `json:"token"`
	QueueLength uint64         `json:"queueLength"`
}

// IsZero reports whether p is the zero value returned for an absent pool.
func (p FeePool) IsZero() bool {
	return p.Fee == NoFee
}

// copyPool returns a copy of p that shares no memory with it.
func copyPool(p FeePool) FeePool {
	newPool := p
	if p.Liquidity != nil {
		newPool.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	return newPool
}

// FeePoolRegistryView is a snapshot of a registry. Pools are listed in chain
// order, which is ascending by fee.
type FeePoolRegistryView struct {
	Pools      []FeePool `json:"pools"`
	LowestFee  FeeKey    `json:"lowestFee"`
	HighestFee FeeKey    `json:"highestFee"`
	PoolCount  uint64    `json:"poolCount"`
}

// Clone returns a deep copy of the view.
func (v FeePoolRegistryView) Clone() FeePoolRegistryView {
	pools := make([]FeePool, len(v.Pools))
	for i, p := range v.Pools {
		pools[i] = copyPool(p)
	}
	return FeePoolRegistryView{
		Pools:      pools,
		LowestFee:  v.LowestFee,
		HighestFee: v.HighestFee,
		PoolCount:  v.PoolCount,
	}
}
