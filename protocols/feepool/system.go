package feepool

import (
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FeePoolSystem provides a concurrency-safe layer over a FeePoolRegistry.
// Writes are serialized by a sync.RWMutex, so each mutation runs to
// completion before the next one starts. Reads of the full view go through an
// atomic.Pointer and never take the lock.
type FeePoolSystem struct {
	mu         sync.RWMutex
	registry   *FeePoolRegistry
	cachedView atomic.Pointer[FeePoolRegistryView]

	book    string
	logger  Logger
	metrics *Metrics
}

// Option configures a FeePoolSystem.
type Option interface {
	apply(*FeePoolSystem)
}

type funcOption func(*FeePoolSystem)

func (f funcOption) apply(s *FeePoolSystem) {
	f(s)
}

// WithLogger sets the logger used to report rejected mutations.
func WithLogger(logger Logger) Option {
	return funcOption(func(s *FeePoolSystem) {
		s.logger = logger
	})
}

// WithMetrics records mutations in m under the given book label.
func WithMetrics(m *Metrics, book string) Option {
	return funcOption(func(s *FeePoolSystem) {
		s.metrics = m
		s.book = book
	})
}

// NewFeePoolSystem creates an empty, concurrency-safe FeePoolSystem.
func NewFeePoolSystem(opts ...Option) *FeePoolSystem {
	return newSystem(NewFeePoolRegistry(), opts)
}

// NewFeePoolSystemFromView restores a system from a snapshot view.
func NewFeePoolSystemFromView(view *FeePoolRegistryView, opts ...Option) (*FeePoolSystem, error) {
	registry, err := NewFeePoolRegistryFromView(view)
	if err != nil {
		return nil, err
	}
	return newSystem(registry, opts), nil
}

func newSystem(registry *FeePoolRegistry, opts []Option) *FeePoolSystem {
	s := &FeePoolSystem{
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.cachedView.Store(s.registry.view())
	return s
}

// updateCachedView MUST be called with s.mu held for writing.
func (s *FeePoolSystem) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// commit records the outcome of a mutation and refreshes the cached view on success.
// MUST be called with s.mu held for writing.
func (s *FeePoolSystem) commit(op string, fee FeeKey, err error) error {
	s.metrics.observe(s.book, op, err, s.registry.poolCount)
	if err != nil {
		s.logger.Debug("Fee pool mutation rejected", "book", s.book, "op", op, "fee", fee, "reason", Reason(err))
		return err
	}
	s.updateCachedView()
	return nil
}

// --- Write Methods ---

// Insert adds a pool positioned by the caller's hints. See FeePoolRegistry.Insert.
func (s *FeePoolSystem) Insert(pool FeePool, prevHint, nextHint FeeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit("insert", pool.Fee, s.registry.Insert(pool, prevHint, nextHint))
}

// Delete removes the pool with the given fee.
func (s *FeePoolSystem) Delete(fee FeeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit("delete", fee, s.registry.Delete(fee))
}

// UpdateProtocolFee overwrites the protocol fee of an existing pool.
func (s *FeePoolSystem) UpdateProtocolFee(fee FeeKey, rate Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit("update_protocol_fee", fee, s.registry.UpdateProtocolFee(fee, rate))
}

// UpdateLiquidity overwrites the liquidity payload of an existing pool.
func (s *FeePoolSystem) UpdateLiquidity(fee FeeKey, liquidity *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit("update_liquidity", fee, s.registry.UpdateLiquidity(fee, liquidity))
}

// --- Read Methods ---

func (s *FeePoolSystem) Get(fee FeeKey) (FeePool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(fee)
}

func (s *FeePoolSystem) LowestFee() FeeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.LowestFee()
}

func (s *FeePoolSystem) HighestFee() FeeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.HighestFee()
}

func (s *FeePoolSystem) PoolCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.PoolCount()
}

// View returns a deep copy of the latest committed snapshot. It does not take
// the lock, and the caller is free to modify the result.
func (s *FeePoolSystem) View() FeePoolRegistryView {
	cached := s.cachedView.Load()
	if cached == nil {
		return FeePoolRegistryView{}
	}
	return cached.Clone()
}
