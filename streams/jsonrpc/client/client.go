package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	differ "github.com/defistate/midmatch-go/differ"
	"github.com/defistate/midmatch-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// errOutOfSync makes the client resubscribe, which starts over with a full state.
var errOutOfSync = errors.New("state stream out of sync")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc defines the function signature for a method that safely applies
// a diff to a previous state.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// Config holds the configuration for the client.
type Config struct {
	URL          string
	Logger       Logger
	BufferSize   uint
	StatePatcher StatePatcherFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor handles the business logic of parsing events, maintaining
// the latest state, applying diffs, and broadcasting updates.
// It is decoupled from the networking layer.
type StreamProcessor struct {
	lastState    *engine.State
	outOfSync    bool
	statePatcher StatePatcherFunc
	stateCh      chan *engine.State
	logger       Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, statePatcher StatePatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:       logger,
		stateCh:      make(chan *engine.State, bufferSize),
		statePatcher: statePatcher,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// OutOfSync reports whether a diff was discarded since the last full state.
func (sp *StreamProcessor) OutOfSync() bool {
	return sp.outOfSync
}

// ProcessMessage accepts a raw JSON message (from WS, File, or JS), processes it,
// and updates the internal state.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case eventTypeFull:
		return sp.handleFullState(event, processingStart)
	case eventTypeDiff:
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFullState(event SubscriptionEvent, start time.Time) error {
	var state engine.State
	if err := json.Unmarshal(event.Payload, &state); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}
	if state.Pairs == nil {
		state.Pairs = make(map[common.Address]engine.PairState)
	}

	sp.logMetrics(&state, time.Since(start), event.SentAt, eventTypeFull)

	sp.outOfSync = false
	sp.storeState(&state)
	sp.stateCh <- &state
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff differ.StateDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.lastState == nil {
		return fmt.Errorf("received diff before full state; from_sequence: %d, to_sequence: %d", diff.FromSequence, diff.ToSequence)
	}

	lastSequence := sp.lastState.Sequence
	if diff.FromSequence != lastSequence {
		sp.logger.Warn(
			"Received out-of-order diff; state may be out of sync. Discarding.",
			"last_known_sequence", lastSequence,
			"diff_from_sequence", diff.FromSequence,
			"diff_to_sequence", diff.ToSequence,
		)
		sp.outOfSync = true
		return nil // Non-fatal, just ignored
	}

	newState, err := sp.statePatcher(sp.lastState, &diff)
	if err != nil {
		sp.outOfSync = true
		return fmt.Errorf("failed to patch state: %w", err)
	}

	newState.Timestamp = diff.Timestamp

	sp.logMetrics(newState, time.Since(start), event.SentAt, eventTypeDiff)

	sp.storeState(newState)
	sp.stateCh <- newState
	return nil
}

func (sp *StreamProcessor) storeState(state *engine.State) {
	sp.lastState = state
}

func (sp *StreamProcessor) logMetrics(state *engine.State, processingDur time.Duration, sentAt int64, stateType string) {
	if state == nil {
		return
	}

	clientFinishTime := time.Now()
	clientStartTime := clientFinishTime.Add(-processingDur)
	serverFinishTime := time.Unix(0, sentAt)
	transportTime := clientStartTime.Sub(serverFinishTime)

	sp.logger.Debug("State Processed",
		"sequence", state.Sequence,
		"type", stateType,
		"pairs", len(state.Pairs),
		"pools", state.PoolCount(),
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			c.logger.Info("Context canceled, shutting down.")
			return
		case errors.Is(err, errOutOfSync):
			c.logger.Warn("State stream out of sync, resubscribing for a full state")
		case err != nil:
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			// Delegate logic to the processor
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
			if c.processor.OutOfSync() {
				return errOutOfSync
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
