package factory

import (
	"sync"
	"testing"

	"github.com/defistate/midmatch-go/pair"
	"github.com/defistate/midmatch-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	stranger    = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	tokenA      = common.HexToAddress("0x0000000000000000000000000000000000000200")
	tokenB      = common.HexToAddress("0x0000000000000000000000000000000000000100")
	tokenC      = common.HexToAddress("0x0000000000000000000000000000000000000300")
	extRef      = common.HexToAddress("0x0000000000000000000000000000000000000abc")
)

func newTestFactory(t *testing.T) *PairFactory {
	t.Helper()
	f, err := New(&Config{
		Address:  factoryAddr,
		Owner:    owner,
		Ledger:   tokenregistry.NewLedger(),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&Config{Owner: owner})
	assert.Error(t, err, "ledger is required")
	_, err = New(&Config{Ledger: tokenregistry.NewLedger()})
	assert.Error(t, err, "owner is required")
}

func TestPairAddress(t *testing.T) {
	assert.Equal(t, PairAddress(factoryAddr, tokenA, tokenB), PairAddress(factoryAddr, tokenB, tokenA))
	assert.NotEqual(t, PairAddress(factoryAddr, tokenA, tokenB), PairAddress(factoryAddr, tokenA, tokenC))
	assert.NotEqual(t, PairAddress(factoryAddr, tokenA, tokenB), PairAddress(stranger, tokenA, tokenB))
}

func TestPairFactory_CreatePair(t *testing.T) {
	f := newTestFactory(t)

	p, err := f.CreatePair(owner, tokenA, tokenB, extRef)
	require.NoError(t, err)
	assert.Equal(t, PairAddress(factoryAddr, tokenA, tokenB), p.Address())
	assert.Equal(t, owner, p.Owner())

	t0, t1 := p.Tokens()
	assert.Equal(t, tokenB, t0, "tokens are stored sorted")
	assert.Equal(t, tokenA, t1)

	got, ok := f.GetPair(tokenB, tokenA)
	require.True(t, ok)
	assert.Same(t, p, got)

	byAddr, err := f.Pair(p.Address())
	require.NoError(t, err)
	assert.Same(t, p, byAddr)

	_, err = f.CreatePair(owner, tokenB, tokenA, extRef)
	assert.ErrorIs(t, err, ErrPairExists)
	_, err = f.CreatePair(stranger, tokenA, tokenC, extRef)
	assert.ErrorIs(t, err, pair.ErrNotOwner)
	_, err = f.CreatePair(owner, tokenC, tokenC, extRef)
	assert.ErrorIs(t, err, pair.ErrIdenticalTokens)

	_, err = f.Pair(stranger)
	assert.ErrorIs(t, err, ErrPairNotFound)
	_, ok = f.GetPair(tokenA, tokenC)
	assert.False(t, ok)
}

func TestPairFactory_SnapshotAndOrder(t *testing.T) {
	f := newTestFactory(t)
	p1, err := f.CreatePair(owner, tokenA, tokenB, extRef)
	require.NoError(t, err)
	p2, err := f.CreatePair(owner, tokenA, tokenC, extRef)
	require.NoError(t, err)
	require.NoError(t, p2.InitializeFeePool(owner, tokenC, 300, 0))

	assert.Equal(t, []common.Address{p1.Address(), p2.Address()}, f.AllPairs())

	state := f.Snapshot(42)
	assert.Equal(t, uint64(42), state.Sequence)
	require.Len(t, state.Pairs, 2)
	assert.Equal(t, uint64(1), state.PoolCount())
	assert.Equal(t, factoryAddr, state.Pairs[p2.Address()].Meta.Factory)
}

func TestPairFactory_ConcurrentCreate(t *testing.T) {
	f := newTestFactory(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.CreatePair(owner, tokenA, tokenB, extRef); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Len(t, f.AllPairs(), 1)
}
