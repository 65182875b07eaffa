package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/midmatch-go/differ"
	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/factory"
	"github.com/defistate/midmatch-go/protocols/tokenregistry"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// RpcNamespace is the namespace under which the API is registered.
	RpcNamespace                  = "midmatch"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	EventTypeFull = "full"
	EventTypeDiff = "diff"

	DefaultSubscriberBufferSize = 64
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Event is the wrapper object sent to subscribers. Payload is an *engine.State
// for "full" events and a *differ.StateDiff for "diff" events.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

// Config holds the dependencies of a Service.
type Config struct {
	Factory  *factory.PairFactory
	Ledger   *tokenregistry.Ledger
	Registry prometheus.Registerer
	Logger   Logger
	// BufferSize is the number of events queued per subscriber before it is resynced.
	BufferSize uint
}

func (c *Config) validate() error {
	if c.Factory == nil {
		return errors.New("config: Factory cannot be nil")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

type subscriber struct {
	ch chan Event
}

// Service serializes every mutation of the factory's pairs and publishes the
// resulting state changes. A mutation and its publication happen under one
// lock, so subscribers see diffs in commit order with contiguous sequences.
type Service struct {
	mu      sync.Mutex
	factory *factory.PairFactory
	ledger  *tokenregistry.Ledger
	differ  *differ.StateDiffer
	logger  Logger
	metrics *Metrics

	state      *engine.State
	subs       map[uint64]*subscriber
	nextSubID  uint64
	bufferSize uint
}

// NewService creates a Service over the current state of cfg.Factory.
func NewService(cfg *Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: cfg.Registry,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state differ: %w", err)
	}
	bufferSize := cfg.BufferSize
	if bufferSize == 0 {
		bufferSize = DefaultSubscriberBufferSize
	}
	return &Service{
		factory:    cfg.Factory,
		ledger:     cfg.Ledger,
		differ:     stateDiffer,
		logger:     cfg.Logger,
		metrics:    NewMetrics(cfg.Registry),
		state:      cfg.Factory.Snapshot(0),
		subs:       make(map[uint64]*subscriber),
		bufferSize: bufferSize,
	}, nil
}

func (s *Service) Factory() *factory.PairFactory { return s.factory }
func (s *Service) Ledger() *tokenregistry.Ledger  { return s.ledger }

// State returns a deep copy of the last published state.
func (s *Service) State() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Mutate runs fn and, if it succeeds and changed the published state,
// broadcasts the diff.
func (s *Service) Mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	s.publishLocked()
	return nil
}

// publishLocked MUST be called with s.mu held.
func (s *Service) publishLocked() {
	next := s.factory.Snapshot(s.state.Sequence + 1)
	diff, err := s.differ.Diff(s.state, next)
	if err != nil {
		// Snapshots are built by the factory, so this is a bug. Resync everyone.
		s.logger.Error("Failed to diff states, resyncing subscribers", "error", err)
		s.state = next
		for _, sub := range s.subs {
			s.resyncLocked(sub)
		}
		return
	}
	if diff.IsEmpty() {
		return
	}
	s.state = next

	event := Event{Type: EventTypeDiff, Payload: diff, SentAt: time.Now().UnixNano()}
	for id, sub := range s.subs {
		select {
		case sub.ch <- event:
			s.metrics.events.WithLabelValues(EventTypeDiff).Inc()
		default:
			s.logger.Warn("Subscriber is lagging, resyncing with full state", "subscriber", id, "sequence", next.Sequence)
			s.resyncLocked(sub)
		}
	}
}

// resyncLocked replaces everything queued for sub with one full event.
// Only publishers send on sub.ch and they hold s.mu, so the send after the
// drain cannot block.
func (s *Service) resyncLocked(sub *subscriber) {
	for drained := false; !drained; {
		select {
		case <-sub.ch:
		default:
			drained = true
		}
	}
	sub.ch <- Event{Type: EventTypeFull, Payload: s.state, SentAt: time.Now().UnixNano()}
	s.metrics.events.WithLabelValues(EventTypeFull).Inc()
	s.metrics.resyncs.Inc()
}

// Subscribe registers a new subscriber. The first event on the returned
// channel is always the full current state. cancel must be called once the
// subscriber stops reading.
func (s *Service) Subscribe() (events <-chan Event, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	sub := &subscriber{ch: make(chan Event, s.bufferSize)}
	sub.ch <- Event{Type: EventTypeFull, Payload: s.state, SentAt: time.Now().UnixNano()}
	s.subs[id] = sub
	s.metrics.events.WithLabelValues(EventTypeFull).Inc()
	s.metrics.subscribers.Set(float64(len(s.subs)))
	s.logger.Info("Subscriber added", "subscriber", id, "sequence", s.state.Sequence)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			s.metrics.subscribers.Set(float64(len(s.subs)))
			s.logger.Info("Subscriber removed", "subscriber", id)
		})
	}
}
