package main

import (
	"fmt"

	"github.com/defistate/midmatch-go/cmd/midmatchd/config"
	"github.com/defistate/midmatch-go/protocols/tokenregistry"
	"github.com/defistate/midmatch-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
)

// seed registers the configured tokens, mints their balances and opens the
// configured pairs and fee tiers. Pair mutations go through the service so
// the state stream starts at the seeded sequence.
func seed(svc *server.Service, cfg *config.DaemonConfig) error {
	ledger := svc.Ledger()
	for _, t := range cfg.Tokens {
		token := tokenregistry.Token{
			Address:  common.HexToAddress(t.Address),
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		}
		if err := ledger.Register(token); err != nil {
			return fmt.Errorf("register token %s: %w", t.Address, err)
		}
		for _, m := range t.Mints {
			amount, err := config.ParseAmount(m.Amount)
			if err != nil {
				return err
			}
			if err := ledger.Mint(token.Address, common.HexToAddress(m.To), amount); err != nil {
				return fmt.Errorf("mint %s to %s: %w", t.Symbol, m.To, err)
			}
		}
	}

	f := svc.Factory()
	owner := f.Owner()
	for _, pc := range cfg.Pairs {
		tokenA, tokenB := common.HexToAddress(pc.TokenA), common.HexToAddress(pc.TokenB)
		var pairAddr common.Address
		err := svc.Mutate(func() error {
			p, err := f.CreatePair(owner, tokenA, tokenB, common.HexToAddress(pc.ExternalRef))
			if err != nil {
				return err
			}
			pairAddr = p.Address()
			return nil
		})
		if err != nil {
			return fmt.Errorf("create pair %s/%s: %w", pc.TokenA, pc.TokenB, err)
		}
		p, err := f.Pair(pairAddr)
		if err != nil {
			return err
		}

		for _, pool := range pc.Pools {
			fee, protocolFee, err := pool.Rates()
			if err != nil {
				return err
			}
			token := common.HexToAddress(pool.Token)
			if err := svc.Mutate(func() error { return p.InitializeFeePool(owner, token, fee, protocolFee) }); err != nil {
				return fmt.Errorf("initialize fee pool %s on %s: %w", pool.Fee, pairAddr.Hex(), err)
			}
		}
	}
	return nil
}
