package patcher

import (
	"fmt"

	differ "github.com/defistate/midmatch-go/differ"
	engine "github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
)

// --- Type Definitions ---

// BookPatcherFunc applies a book diff to a previous book snapshot.
//
// CONTRACT:
// 1. Immutability: Implementations MUST NOT mutate 'prevState'. They must create a copy.
// 2. Zero Handling: 'prevState' is the zero view if the book is new.
type BookPatcherFunc func(prevState feepool.FeePoolRegistryView, diff feepool.FeePoolRegistryDiff) (feepool.FeePoolRegistryView, error)

// --- Config and Main Struct ---

type StatePatcherConfig struct {
	// BookPatcher defaults to feepool.Patcher.
	BookPatcher BookPatcherFunc
}

// StatePatcher applies state diffs.
type StatePatcher struct {
	bookPatcher BookPatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	bookPatcher := feepool.Patcher
	if cfg != nil && cfg.BookPatcher != nil {
		bookPatcher = cfg.BookPatcher
	}
	return &StatePatcher{
		bookPatcher: bookPatcher,
	}, nil
}

// --- Implementation ---

// Patch creates a new State by applying the Diff to the Old State.
// It uses "Structural Sharing": pairs that didn't change are shared by
// reference with oldState. Pairs that changed are rebuilt.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	// 1. Integrity Check
	if oldState.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence, diff.FromSequence)
	}

	// 2. Start from a shallow copy of the old pairs.
	newPairs := make(map[common.Address]engine.PairState, len(oldState.Pairs)+len(diff.PairAdditions))
	for k, v := range oldState.Pairs {
		newPairs[k] = v
	}

	// 3. Apply deletions, then additions, then updates.
	for _, addr := range diff.PairDeletions {
		if _, ok := newPairs[addr]; !ok {
			return nil, fmt.Errorf("patcher: deletion of unknown pair %s", addr.Hex())
		}
		delete(newPairs, addr)
	}

	for addr, pair := range diff.PairAdditions {
		if _, ok := newPairs[addr]; ok {
			return nil, fmt.Errorf("patcher: addition of existing pair %s", addr.Hex())
		}
		newPairs[addr] = pair.Clone()
	}

	for addr, pairDiff := range diff.Pairs {
		oldPair, ok := newPairs[addr]
		if !ok {
			return nil, fmt.Errorf("patcher: update of unknown pair %s", addr.Hex())
		}

		books := make(map[common.Address]feepool.FeePoolRegistryView, len(oldPair.Books))
		for token, view := range oldPair.Books {
			books[token] = view
		}
		for token, bookDiff := range pairDiff.Books {
			// The BookPatcherFunc is responsible for copying the old book.
			newBook, err := p.bookPatcher(books[token], bookDiff)
			if err != nil {
				return nil, fmt.Errorf("patcher: failed to patch pair %s book %s: %w", addr.Hex(), token.Hex(), err)
			}
			books[token] = newBook
		}

		// Metadata and totals come from the diff, as it represents the latest state truth.
		newPairs[addr] = engine.PairState{
			Meta:                 pairDiff.Meta,
			Token0TotalLiquidity: pairDiff.Token0TotalLiquidity,
			Token1TotalLiquidity: pairDiff.Token1TotalLiquidity,
			Books:                books,
		}
	}

	// 4. Return Final State
	return &engine.State{
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp,
		Pairs:     newPairs,
	}, nil
}
