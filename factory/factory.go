package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/pair"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrPairExists is returned when a pair for the two tokens was already created.
	ErrPairExists = errors.New("pair already exists")
	// ErrPairNotFound is returned when no pair exists for a lookup.
	ErrPairNotFound = errors.New("pair not found")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of a PairFactory.
type Config struct {
	Address common.Address
	Owner   common.Address
	Ledger  pair.Transferer
	// Registry is optional; when set, every pair's books record metrics in it.
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner cannot be the zero address")
	}
	return nil
}

type tokenKey struct {
	token0, token1 common.Address
}

// PairFactory creates trading pairs and keeps track of them. It is safe for
// concurrent use.
type PairFactory struct {
	mu      sync.RWMutex
	address common.Address
	owner   common.Address
	ledger  pair.Transferer
	logger  Logger
	metrics *feepool.Metrics

	pairs     map[common.Address]*pair.TradingPair
	byTokens  map[tokenKey]common.Address
	pairOrder []common.Address
}

// New creates a PairFactory from cfg.
func New(cfg *Config) (*PairFactory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f := &PairFactory{
		address:  cfg.Address,
		owner:    cfg.Owner,
		ledger:   cfg.Ledger,
		logger:   cfg.Logger,
		pairs:    make(map[common.Address]*pair.TradingPair),
		byTokens: make(map[tokenKey]common.Address),
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Registry != nil {
		f.metrics = feepool.NewMetrics(cfg.Registry)
	}
	return f, nil
}

func (f *PairFactory) Address() common.Address { return f.address }
func (f *PairFactory) Owner() common.Address   { return f.owner }

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if tokenA.Cmp(tokenB) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PairAddress is the deterministic address of the pair of two tokens created
// by factory. The order of the tokens does not matter.
func PairAddress(factory, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	return common.BytesToAddress(crypto.Keccak256(factory.Bytes(), token0.Bytes(), token1.Bytes()))
}

// CreatePair creates and initializes the pair of tokenA and tokenB. The
// factory owner becomes the owner of the pair.
func (f *PairFactory) CreatePair(caller, tokenA, tokenB, externalRef common.Address) (*pair.TradingPair, error) {
	if caller != f.owner {
		return nil, pair.ErrNotOwner
	}
	token0, token1 := SortTokens(tokenA, tokenB)

	f.mu.Lock()
	defer f.mu.Unlock()

	key := tokenKey{token0, token1}
	if existing, ok := f.byTokens[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPairExists, existing.Hex())
	}

	addr := PairAddress(f.address, token0, token1)
	opts := []pair.Option{pair.WithLogger(f.logger)}
	if f.metrics != nil {
		opts = append(opts, pair.WithMetrics(f.metrics))
	}
	p := pair.New(addr, f.address, f.owner, f.ledger, opts...)
	if err := p.Initialize(f.owner, token0, token1, externalRef); err != nil {
		return nil, err
	}

	f.pairs[addr] = p
	f.byTokens[key] = addr
	f.pairOrder = append(f.pairOrder, addr)
	f.logger.Info("Pair created", "pair", addr.Hex(), "token0", token0.Hex(), "token1", token1.Hex(), "pairs", len(f.pairOrder))
	return p, nil
}

// GetPair returns the pair of two tokens in either order.
func (f *PairFactory) GetPair(tokenA, tokenB common.Address) (*pair.TradingPair, bool) {
	token0, token1 := SortTokens(tokenA, tokenB)
	f.mu.RLock()
	defer f.mu.RUnlock()
	addr, ok := f.byTokens[tokenKey{token0, token1}]
	if !ok {
		return nil, false
	}
	return f.pairs[addr], true
}

// Pair returns the pair at addr.
func (f *PairFactory) Pair(addr common.Address) (*pair.TradingPair, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pairs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPairNotFound, addr.Hex())
	}
	return p, nil
}

// AllPairs returns the addresses of every pair in creation order.
func (f *PairFactory) AllPairs() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]common.Address, len(f.pairOrder))
	copy(out, f.pairOrder)
	return out
}

// Snapshot returns the state of every pair under the given sequence number.
func (f *PairFactory) Snapshot(sequence uint64) *engine.State {
	f.mu.RLock()
	pairs := make([]*pair.TradingPair, 0, len(f.pairs))
	for _, p := range f.pairs {
		pairs = append(pairs, p)
	}
	f.mu.RUnlock()

	state := &engine.State{
		Sequence:  sequence,
		Timestamp: uint64(time.Now().UnixNano()),
		Pairs:     make(map[common.Address]engine.PairState, len(pairs)),
	}
	for _, p := range pairs {
		state.Pairs[p.Address()] = p.Snapshot()
	}
	return state
}
