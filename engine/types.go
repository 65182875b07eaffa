package engine

import (
	"math/big"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
)

// PairMeta identifies a trading pair and the parties it was created by.
type PairMeta struct {
	Address common.Address `json:"address"`
	Factory common.Address `json:"factory"`
	Owner   common.Address `json:"owner"`
	Token0  common.Address `json:"token0"`
	Token1  common.Address `json:"token1"`
	// ExternalRef is the external AMM pair this pair was initialized against.
	ExternalRef common.Address `json:"externalRef"`
}

// Initialized reports whether the pair has been bound to its tokens.
func (m PairMeta) Initialized() bool {
	return m.Token0 != (common.Address{})
}

// PairState is the published state of a single trading pair.
type PairState struct {
	Meta                 PairMeta `json:"meta"`
	Token0TotalLiquidity *big.Int `json:"token0TotalLiquidity"`
	Token1TotalLiquidity *big.Int `json:"token1TotalLiquidity"`

	// Books holds one ordered fee pool registry per token of the pair.
	Books map[common.Address]feepool.FeePoolRegistryView `json:"books"`
}

// Clone returns a deep copy of the pair state.
func (p PairState) Clone() PairState {
	books := make(map[common.Address]feepool.FeePoolRegistryView, len(p.Books))
	for token, view := range p.Books {
		books[token] = view.Clone()
	}
	return PairState{
		Meta:                 p.Meta,
		Token0TotalLiquidity: copyBig(p.Token0TotalLiquidity),
		Token1TotalLiquidity: copyBig(p.Token1TotalLiquidity),
		Books:                books,
	}
}

// PoolCount returns the number of fee pools across both books.
func (p PairState) PoolCount() uint64 {
	var n uint64
	for _, view := range p.Books {
		n += view.PoolCount
	}
	return n
}

// State is the main data structure broadcast to subscribers.
type State struct {
	// Sequence increases by one with every committed mutation.
	Sequence  uint64                       `json:"sequence"`
	Timestamp uint64                       `json:"timestamp"`
	Pairs     map[common.Address]PairState `json:"pairs"`
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	pairs := make(map[common.Address]PairState, len(s.Pairs))
	for addr, p := range s.Pairs {
		pairs[addr] = p.Clone()
	}
	return &State{
		Sequence:  s.Sequence,
		Timestamp: s.Timestamp,
		Pairs:     pairs,
	}
}

// PoolCount returns the number of fee pools across every pair.
func (s *State) PoolCount() uint64 {
	var n uint64
	for _, p := range s.Pairs {
		n += p.PoolCount()
	}
	return n
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}
