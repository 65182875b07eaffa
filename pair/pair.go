package pair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/defistate/midmatch-go/protocols/feepool/feemath"
	"github.com/defistate/midmatch-go/protocols/feepool/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrNotOwner           = errors.New("caller is not the owner")
	ErrIdenticalTokens    = errors.New("identical tokens")
	ErrZeroAddress        = errors.New("zero address")
	ErrAlreadyInitialized = errors.New("pair is already initialized")
	ErrNotInitialized     = errors.New("pair is not initialized")
	ErrTokenNotInPair     = errors.New("token is not in the pair")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrLiquidityOverflow  = errors.New("liquidity overflows 256 bits")
	ErrPoolNotEmpty       = errors.New("fee pool still holds liquidity")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transferer moves token balances. It is satisfied by *tokenregistry.Ledger.
type Transferer interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

// TradingPair owns two tokens and one fee pool book per token. Every method
// runs under the pair's lock, so the hints it computes for a book are current
// when the book verifies them.
type TradingPair struct {
	mu sync.Mutex

	address common.Address
	factory common.Address
	owner   common.Address
	ledger  Transferer

	initialized bool
	token0      common.Address
	token1      common.Address
	externalRef common.Address

	token0Total *uint256.Int
	token1Total *uint256.Int
	books       map[common.Address]*feepool.FeePoolSystem

	indexer *indexer.Indexer
	logger  Logger
	metrics *feepool.Metrics
}

// Option configures a TradingPair.
type Option interface {
	apply(*TradingPair)
}

type funcOption func(*TradingPair)

func (f funcOption) apply(p *TradingPair) {
	f(p)
}

// WithLogger sets the logger of the pair and of its books.
func WithLogger(logger Logger) Option {
	return funcOption(func(p *TradingPair) {
		p.logger = logger
	})
}

// WithMetrics records book mutations in m.
func WithMetrics(m *feepool.Metrics) Option {
	return funcOption(func(p *TradingPair) {
		p.metrics = m
	})
}

// New creates an uninitialized pair at address. Only owner may initialize it
// and manage its fee pools.
func New(address, factory, owner common.Address, ledger Transferer, opts ...Option) *TradingPair {
	p := &TradingPair{
		address:     address,
		factory:     factory,
		owner:       owner,
		ledger:      ledger,
		token0Total: new(uint256.Int),
		token1Total: new(uint256.Int),
		books:       make(map[common.Address]*feepool.FeePoolSystem, 2),
		indexer:     indexer.New(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt.apply(p)
	}
	return p
}

func (p *TradingPair) Address() common.Address { return p.address }
func (p *TradingPair) Owner() common.Address   { return p.owner }

// Tokens returns the pair's tokens, zero until initialized.
func (p *TradingPair) Tokens() (common.Address, common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token0, p.token1
}

// Initialize binds the pair to its tokens. It can be called once, by the owner.
func (p *TradingPair) Initialize(caller, tokenA, tokenB, externalRef common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrNotOwner
	}
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if tokenA == tokenB {
		return fmt.Errorf("%w: %s", ErrIdenticalTokens, tokenA.Hex())
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return ErrZeroAddress
	}

	p.token0, p.token1, p.externalRef = tokenA, tokenB, externalRef
	for _, token := range []common.Address{tokenA, tokenB} {
		p.books[token] = p.newBook(token)
	}
	p.initialized = true
	p.logger.Info("Pair initialized", "pair", p.address.Hex(), "token0", tokenA.Hex(), "token1", tokenB.Hex())
	return nil
}

func (p *TradingPair) newBook(token common.Address) *feepool.FeePoolSystem {
	opts := []feepool.Option{feepool.WithLogger(p.logger)}
	if p.metrics != nil {
		opts = append(opts, feepool.WithMetrics(p.metrics, p.address.Hex()+"/"+token.Hex()))
	}
	return feepool.NewFeePoolSystem(opts...)
}

// book returns the book of token. MUST be called with p.mu held.
func (p *TradingPair) book(token common.Address) (*feepool.FeePoolSystem, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	b, ok := p.books[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotInPair, token.Hex())
	}
	return b, nil
}

// QueueAddress is the deterministic address of the matching queue of a fee pool.
func QueueAddress(pair, token common.Address, fee feepool.FeeKey) common.Address {
	feeBytes := new(big.Int).SetUint64(uint64(fee)).FillBytes(make([]byte, 32))
	return common.BytesToAddress(crypto.Keccak256(pair.Bytes(), token.Bytes(), feeBytes))
}

// InitializeFeePool opens a fee tier for token. The hints are taken from the
// current book, so the insert only fails on a genuinely invalid fee.
func (p *TradingPair) InitializeFeePool(caller, token common.Address, fee feepool.FeeKey, protocolFee feepool.Rate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrNotOwner
	}
	book, err := p.book(token)
	if err != nil {
		return err
	}
	if fee.Rate() > feepool.FeeScale || protocolFee > feepool.FeeScale {
		return fmt.Errorf("%w: fee %d, protocol fee %d", feemath.ErrRateTooHigh, fee, protocolFee)
	}

	prevHint, nextHint, err := p.indexer.Index(book.View()).Hints(fee)
	if err != nil {
		return err
	}
	pool := feepool.FeePool{
		Fee:         fee,
		ProtocolFee: protocolFee,
		Liquidity:   new(big.Int),
		Queue:       QueueAddress(p.address, token, fee),
		Factory:     p.factory,
		Token:       token,
	}
	if err := book.Insert(pool, prevHint, nextHint); err != nil {
		return err
	}
	p.logger.Info("Fee pool initialized", "pair", p.address.Hex(), "token", token.Hex(), "fee", fee, "protocolFee", protocolFee)
	return nil
}

// AddLiquidity pulls amount of token from caller into the pair and credits it
// to the fee pool identified by fee. Nothing is transferred if the pool does
// not exist or the totals would overflow.
func (p *TradingPair) AddLiquidity(ctx context.Context, caller, token common.Address, amount *uint256.Int, fee feepool.FeeKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, err := p.book(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	pool, ok := book.Get(fee)
	if !ok {
		return fmt.Errorf("%w: fee %d", feepool.ErrPoolNotFound, fee)
	}

	poolLiquidity := new(uint256.Int)
	if pool.Liquidity != nil {
		if overflow := poolLiquidity.SetFromBig(pool.Liquidity); overflow {
			return ErrLiquidityOverflow
		}
	}
	newPoolLiquidity, overflow := new(uint256.Int).AddOverflow(poolLiquidity, amount)
	if overflow {
		return ErrLiquidityOverflow
	}
	total := p.token0Total
	if token == p.token1 {
		total = p.token1Total
	}
	newTotal, overflow := new(uint256.Int).AddOverflow(total, amount)
	if overflow {
		return ErrLiquidityOverflow
	}

	if err := p.ledger.Transfer(ctx, token, caller, p.address, amount); err != nil {
		return fmt.Errorf("transfer into pair failed: %w", err)
	}

	if err := book.UpdateLiquidity(fee, newPoolLiquidity.ToBig()); err != nil {
		// unreachable while p.mu is held: the pool was found above
		p.logger.Error("Failed to credit fee pool after transfer", "pair", p.address.Hex(), "fee", fee, "error", err)
		return err
	}
	total.Set(newTotal)
	p.logger.Debug("Liquidity added", "pair", p.address.Hex(), "token", token.Hex(), "fee", fee, "amount", amount.Dec())
	return nil
}

// DeleteFeePool closes an empty fee tier.
func (p *TradingPair) DeleteFeePool(caller, token common.Address, fee feepool.FeeKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrNotOwner
	}
	book, err := p.book(token)
	if err != nil {
		return err
	}
	if pool, ok := book.Get(fee); ok && pool.Liquidity != nil && pool.Liquidity.Sign() != 0 {
		return fmt.Errorf("%w: fee %d holds %s", ErrPoolNotEmpty, fee, pool.Liquidity)
	}
	return book.Delete(fee)
}

// UpdateProtocolFee changes the protocol share of an existing fee tier.
func (p *TradingPair) UpdateProtocolFee(caller, token common.Address, fee feepool.FeeKey, rate feepool.Rate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrNotOwner
	}
	book, err := p.book(token)
	if err != nil {
		return err
	}
	if rate > feepool.FeeScale {
		return fmt.Errorf("%w: %d", feemath.ErrRateTooHigh, rate)
	}
	return book.UpdateProtocolFee(fee, rate)
}

// Quote is the fee charged on an amount by one fee tier.
type Quote struct {
	Total    *uint256.Int
	LP       *uint256.Int
	Protocol *uint256.Int
}

// QuoteFee computes the fee the tier fee of token charges on amount.
func (p *TradingPair) QuoteFee(token common.Address, amount *uint256.Int, fee feepool.FeeKey) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, err := p.book(token)
	if err != nil {
		return Quote{}, err
	}
	pool, ok := book.Get(fee)
	if !ok {
		return Quote{}, fmt.Errorf("%w: fee %d", feepool.ErrPoolNotFound, fee)
	}
	total, err := feemath.ComputeFee(amount, pool.Fee.Rate())
	if err != nil {
		return Quote{}, err
	}
	lp, protocol, err := feemath.SplitFee(total, pool.ProtocolFee)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Total: total, LP: lp, Protocol: protocol}, nil
}

// Book returns an ordered index over the current fee pools of token.
func (p *TradingPair) Book(token common.Address) (indexer.IndexedFeePools, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, err := p.book(token)
	if err != nil {
		return nil, err
	}
	return p.indexer.Index(book.View()), nil
}

// FeePool returns a single fee pool of token.
func (p *TradingPair) FeePool(token common.Address, fee feepool.FeeKey) (feepool.FeePool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, err := p.book(token)
	if err != nil {
		return feepool.FeePool{}, false, err
	}
	pool, ok := book.Get(fee)
	return pool, ok, nil
}

// FeePools returns the book of token as a snapshot view, cheapest tier first.
func (p *TradingPair) FeePools(token common.Address) (feepool.FeePoolRegistryView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, err := p.book(token)
	if err != nil {
		return feepool.FeePoolRegistryView{}, err
	}
	return book.View(), nil
}

// TotalLiquidity returns a copy of the running deposit total of token.
func (p *TradingPair) TotalLiquidity(token common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.book(token); err != nil {
		return nil, err
	}
	if token == p.token1 {
		return new(uint256.Int).Set(p.token1Total), nil
	}
	return new(uint256.Int).Set(p.token0Total), nil
}

// Snapshot returns the published state of the pair.
func (p *TradingPair) Snapshot() engine.PairState {
	p.mu.Lock()
	defer p.mu.Unlock()

	books := make(map[common.Address]feepool.FeePoolRegistryView, len(p.books))
	for token, b := range p.books {
		books[token] = b.View()
	}
	return engine.PairState{
		Meta: engine.PairMeta{
			Address:     p.address,
			Factory:     p.factory,
			Owner:       p.owner,
			Token0:      p.token0,
			Token1:      p.token1,
			ExternalRef: p.externalRef,
		},
		Token0TotalLiquidity: p.token0Total.ToBig(),
		Token1TotalLiquidity: p.token1Total.ToBig(),
		Books:                books,
	}
}
