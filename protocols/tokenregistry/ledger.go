package tokenregistry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrUnknownToken is returned when an operation names a token that was never registered.
	ErrUnknownToken = errors.New("unknown token")
	// ErrTokenExists is returned when a token address is registered twice.
	ErrTokenExists = errors.New("token already registered")
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("transfer amount exceeds balance")
	// ErrBalanceOverflow is returned when a credit would overflow 256 bits.
	ErrBalanceOverflow = errors.New("balance overflows 256 bits")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
)

// Ledger is an in-memory, concurrency-safe token balance book. It stands in
// for the token contracts a trading pair pulls deposits from.
type Ledger struct {
	mu       sync.RWMutex
	tokens   map[common.Address]Token
	balances map[common.Address]map[common.Address]*uint256.Int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		tokens:   make(map[common.Address]Token),
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Register adds a token to the ledger.
func (l *Ledger) Register(token Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.tokens[token.Address]; exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, token.Address.Hex())
	}
	l.tokens[token.Address] = token
	l.balances[token.Address] = make(map[common.Address]*uint256.Int)
	return nil
}

// GetByAddress retrieves a token by its address.
func (l *Ledger) GetByAddress(addr common.Address) (Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	token, ok := l.tokens[addr]
	return token, ok
}

// All returns every registered token, sorted by address.
func (l *Ledger) All() []Token {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens := make([]Token, 0, len(l.tokens))
	for _, t := range l.tokens {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Address.Cmp(tokens[j].Address) < 0
	})
	return tokens
}

// Mint credits amount of token to owner.
func (l *Ledger) Mint(token, owner common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	book, ok := l.balances[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	next, overflow := new(uint256.Int).AddOverflow(balanceOf(book, owner), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	book[owner] = next
	return nil
}

// BalanceOf returns a copy of owner's balance of token.
func (l *Ledger) BalanceOf(token, owner common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	book, ok := l.balances[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return new(uint256.Int).Set(balanceOf(book, owner)), nil
}

// Transfer moves amount of token from one holder to another. Either both
// balances change or neither does.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	book, ok := l.balances[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	fromBalance := balanceOf(book, from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toNext, overflow := new(uint256.Int).AddOverflow(balanceOf(book, to), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	book[from] = new(uint256.Int).Sub(fromBalance, amount)
	book[to] = toNext
	return nil
}

func balanceOf(book map[common.Address]*uint256.Int, owner common.Address) *uint256.Int {
	if b, ok := book[owner]; ok {
		return b
	}
	return new(uint256.Int)
}
