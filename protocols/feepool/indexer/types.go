package indexer

import (
	"github.com/defistate/midmatch-go/protocols/feepool"
)

// IndexedFeePools defines the methods for accessing an indexed fee pool registry view.
type IndexedFeePools interface {
	GetByFee(fee feepool.FeeKey) (feepool.FeePool, bool)
	Hints(fee feepool.FeeKey) (prevHint, nextHint feepool.FeeKey, err error)
	Ascend(from feepool.FeeKey, fn func(feepool.FeePool) bool)
	Cheapest() (feepool.FeePool, bool)
	All() []feepool.FeePool
	Len() int
}
