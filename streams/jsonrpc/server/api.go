package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/pair"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

var (
	// ErrInvalidAmount is returned for a missing, negative or oversized amount.
	ErrInvalidAmount = errors.New("amount must be a non-negative 256-bit integer")
)

// API is the JSON-RPC surface of a Service. Callers identify themselves with
// the "from" argument; authenticating it is left to the transport in front of
// the server.
type API struct {
	service *Service
	logger  Logger
}

// NewAPI creates the API for service.
func NewAPI(service *Service) *API {
	return &API{service: service, logger: service.logger}
}

// Register registers api on server under RpcNamespace.
func Register(server *rpc.Server, api *API) error {
	return server.RegisterName(RpcNamespace, api)
}

func toUint256(amount *hexutil.Big) (*uint256.Int, error) {
	if amount == nil || (*big.Int)(amount).Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig((*big.Int)(amount))
	if overflow {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

func (api *API) pair(addr common.Address) (*pair.TradingPair, error) {
	return api.service.factory.Pair(addr)
}

// --- Mutations ---

// CreatePair creates the pair of two tokens and returns its address.
func (api *API) CreatePair(from, tokenA, tokenB, externalRef common.Address) (common.Address, error) {
	var addr common.Address
	err := api.service.Mutate(func() error {
		p, err := api.service.factory.CreatePair(from, tokenA, tokenB, externalRef)
		if err != nil {
			return err
		}
		addr = p.Address()
		return nil
	})
	return addr, err
}

// InitializeFeePool opens a fee tier on one side of a pair.
func (api *API) InitializeFeePool(from, pairAddr, token common.Address, fee feepool.FeeKey, protocolFee feepool.Rate) error {
	p, err := api.pair(pairAddr)
	if err != nil {
		return err
	}
	return api.service.Mutate(func() error {
		return p.InitializeFeePool(from, token, fee, protocolFee)
	})
}

// AddLiquidity deposits amount of token from the caller into a fee tier.
func (api *API) AddLiquidity(ctx context.Context, from, pairAddr, token common.Address, amount *hexutil.Big, fee feepool.FeeKey) error {
	p, err := api.pair(pairAddr)
	if err != nil {
		return err
	}
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	return api.service.Mutate(func() error {
		return p.AddLiquidity(ctx, from, token, v, fee)
	})
}

// DeleteFeePool closes an empty fee tier.
func (api *API) DeleteFeePool(from, pairAddr, token common.Address, fee feepool.FeeKey) error {
	p, err := api.pair(pairAddr)
	if err != nil {
		return err
	}
	return api.service.Mutate(func() error {
		return p.DeleteFeePool(from, token, fee)
	})
}

// UpdateProtocolFee changes the protocol share of a fee tier.
func (api *API) UpdateProtocolFee(from, pairAddr, token common.Address, fee feepool.FeeKey, rate feepool.Rate) error {
	p, err := api.pair(pairAddr)
	if err != nil {
		return err
	}
	return api.service.Mutate(func() error {
		return p.UpdateProtocolFee(from, token, fee, rate)
	})
}

// Mint credits amount of token to an account. Only the factory owner may mint.
func (api *API) Mint(from, token, to common.Address, amount *hexutil.Big) error {
	if from != api.service.factory.Owner() {
		return pair.ErrNotOwner
	}
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	return api.service.ledger.Mint(token, to, v)
}

// --- Queries ---

// Pairs returns every pair address in creation order.
func (api *API) Pairs() []common.Address {
	return api.service.factory.AllPairs()
}

// GetFeePool returns the fee pool, or null if the tier does not exist.
func (api *API) GetFeePool(pairAddr, token common.Address, fee feepool.FeeKey) (*feepool.FeePool, error) {
	p, err := api.pair(pairAddr)
	if err != nil {
		return nil, err
	}
	pool, ok, err := p.FeePool(token, fee)
	if err != nil || !ok {
		return nil, err
	}
	return &pool, nil
}

// FeePools returns the ordered book of one side of a pair.
func (api *API) FeePools(pairAddr, token common.Address) (*feepool.FeePoolRegistryView, error) {
	p, err := api.pair(pairAddr)
	if err != nil {
		return nil, err
	}
	view, err := p.FeePools(token)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (api *API) LowestFee(pairAddr, token common.Address) (feepool.FeeKey, error) {
	view, err := api.FeePools(pairAddr, token)
	if err != nil {
		return feepool.NoFee, err
	}
	return view.LowestFee, nil
}

func (api *API) HighestFee(pairAddr, token common.Address) (feepool.FeeKey, error) {
	view, err := api.FeePools(pairAddr, token)
	if err != nil {
		return feepool.NoFee, err
	}
	return view.HighestFee, nil
}

func (api *API) PoolCount(pairAddr, token common.Address) (hexutil.Uint64, error) {
	view, err := api.FeePools(pairAddr, token)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(view.PoolCount), nil
}

// HintsResult are the neighbours a new fee tier must be inserted between.
type HintsResult struct {
	PrevHint feepool.FeeKey `json:"prevHint"`
	NextHint feepool.FeeKey `json:"nextHint"`
}

// Hints returns the insertion hints for fee against the current book.
func (api *API) Hints(pairAddr, token common.Address, fee feepool.FeeKey) (*HintsResult, error) {
	p, err := api.pair(pairAddr)
	if err != nil {
		return nil, err
	}
	book, err := p.Book(token)
	if err != nil {
		return nil, err
	}
	prev, next, err := book.Hints(fee)
	if err != nil {
		return nil, err
	}
	return &HintsResult{PrevHint: prev, NextHint: next}, nil
}

// QuoteResult is the fee a tier charges on an amount.
type QuoteResult struct {
	Total    *hexutil.Big `json:"total"`
	LP       *hexutil.Big `json:"lp"`
	Protocol *hexutil.Big `json:"protocol"`
}

// QuoteFee computes the fee tier fee of token charges on amount.
func (api *API) QuoteFee(pairAddr, token common.Address, amount *hexutil.Big, fee feepool.FeeKey) (*QuoteResult, error) {
	p, err := api.pair(pairAddr)
	if err != nil {
		return nil, err
	}
	v, err := toUint256(amount)
	if err != nil {
		return nil, err
	}
	q, err := p.QuoteFee(token, v, fee)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{
		Total:    (*hexutil.Big)(q.Total.ToBig()),
		LP:       (*hexutil.Big)(q.LP.ToBig()),
		Protocol: (*hexutil.Big)(q.Protocol.ToBig()),
	}, nil
}

// BalanceOf returns the ledger balance of an account.
func (api *API) BalanceOf(token, owner common.Address) (*hexutil.Big, error) {
	bal, err := api.service.ledger.BalanceOf(token, owner)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(bal.ToBig()), nil
}

// State returns the last published state.
func (api *API) State() *engine.State {
	return api.service.State()
}

// --- Subscriptions ---

// SubscribeStateStream sends the full state, then one diff per committed mutation.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	events, cancel := api.service.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case event := <-events:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.logger.Warn("Failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case err := <-rpcSub.Err():
				if err != nil {
					api.logger.Debug("Subscription closed", "subscription", rpcSub.ID, "error", fmt.Sprint(err))
				}
				return
			}
		}
	}()
	return rpcSub, nil
}
