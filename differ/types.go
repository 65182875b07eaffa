package differ

import (
	"math/big"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PairDiff carries the changes of a pair that exists in both states. Meta and
// the liquidity totals are always the new values; Books lists only the books
// that changed.
type PairDiff struct {
	Meta                 engine.PairMeta                                `json:"meta"`
	Token0TotalLiquidity *big.Int                                       `json:"token0TotalLiquidity"`
	Token1TotalLiquidity *big.Int                                       `json:"token1TotalLiquidity"`
	Books                map[common.Address]feepool.FeePoolRegistryDiff `json:"books,omitempty"`
}

// StateDiff represents a summary of changes FromSequence to ToSequence.
type StateDiff struct {
	Timestamp    uint64 `json:"timestamp"`
	FromSequence uint64 `json:"fromSequence"`
	ToSequence   uint64 `json:"toSequence"`

	// PairAdditions are pairs that did not exist in the old state, sent in full.
	PairAdditions map[common.Address]engine.PairState `json:"pairAdditions,omitempty"`
	PairDeletions []common.Address                    `json:"pairDeletions,omitempty"`
	Pairs         map[common.Address]PairDiff         `json:"pairs,omitempty"`
}

// IsEmpty reports whether the diff carries no pair changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.PairAdditions) == 0 && len(d.PairDeletions) == 0 && len(d.Pairs) == 0
}
