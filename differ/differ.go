package differ

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---

// BookDiffer computes the diff between two snapshots of one fee pool book.
type BookDiffer func(old, new feepool.FeePoolRegistryView) feepool.FeePoolRegistryDiff

// StateDifferConfig holds the book differ and dependencies.
type StateDifferConfig struct {
	// BookDiffer defaults to feepool.Differ.
	BookDiffer BookDiffer
	Registry   prometheus.Registerer // Required for metrics.
	Logger     Logger                // Required for logging.
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer is the main differ engine.
type StateDiffer struct {
	metrics    *Metrics
	logger     Logger
	bookDiffer BookDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bookDiffer := cfg.BookDiffer
	if bookDiffer == nil {
		bookDiffer = feepool.Differ
	}
	return &StateDiffer{
		metrics:    NewMetrics(cfg.Registry),
		logger:     cfg.Logger,
		bookDiffer: bookDiffer,
	}, nil
}

// Diff returns the changes that turn old into new.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("StateDiffer received a nil state")
	}
	if new.Sequence < old.Sequence {
		return nil, fmt.Errorf("new state sequence %d is behind old state sequence %d", new.Sequence, old.Sequence)
	}

	diff := &StateDiff{
		Timestamp:     uint64(time.Now().UnixNano()),
		FromSequence:  old.Sequence,
		ToSequence:    new.Sequence,
		PairAdditions: make(map[common.Address]engine.PairState),
		Pairs:         make(map[common.Address]PairDiff),
	}

	for addr, newPair := range new.Pairs {
		oldPair, ok := old.Pairs[addr]
		if !ok {
			diff.PairAdditions[addr] = newPair.Clone()
			continue
		}
		pairDiff, changed, err := d.diffPair(oldPair, newPair)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", addr.Hex(), err)
		}
		if changed {
			diff.Pairs[addr] = pairDiff
		}
	}
	for addr := range old.Pairs {
		if _, ok := new.Pairs[addr]; !ok {
			diff.PairDeletions = append(diff.PairDeletions, addr)
		}
	}
	sort.Slice(diff.PairDeletions, func(i, j int) bool {
		return diff.PairDeletions[i].Cmp(diff.PairDeletions[j]) < 0
	})

	d.metrics.pairsChanged.WithLabelValues("added").Add(float64(len(diff.PairAdditions)))
	d.metrics.pairsChanged.WithLabelValues("updated").Add(float64(len(diff.Pairs)))
	d.metrics.pairsChanged.WithLabelValues("deleted").Add(float64(len(diff.PairDeletions)))
	return diff, nil
}

func (d *StateDiffer) diffPair(old, new engine.PairState) (PairDiff, bool, error) {
	changed := old.Meta != new.Meta ||
		!bigEqual(old.Token0TotalLiquidity, new.Token0TotalLiquidity) ||
		!bigEqual(old.Token1TotalLiquidity, new.Token1TotalLiquidity)

	books := make(map[common.Address]feepool.FeePoolRegistryDiff)
	for token, newBook := range new.Books {
		// a book that first appears is diffed against the empty book and
		// always sent, so the patcher creates it even when it has no pools
		oldBook, existed := old.Books[token]
		bookDiff := d.bookDiffer(oldBook, newBook)
		if !existed || !bookDiff.IsEmpty() {
			books[token] = bookDiff
		}
	}
	for token := range old.Books {
		if _, ok := new.Books[token]; !ok {
			return PairDiff{}, false, fmt.Errorf("book for token %s disappeared", token.Hex())
		}
	}
	if !changed && len(books) == 0 {
		return PairDiff{}, false, nil
	}

	return PairDiff{
		Meta:                 new.Meta,
		Token0TotalLiquidity: copyBig(new.Token0TotalLiquidity),
		Token1TotalLiquidity: copyBig(new.Token1TotalLiquidity),
		Books:                books,
	}, true, nil
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}
