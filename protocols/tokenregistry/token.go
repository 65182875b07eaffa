package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// Token is the metadata of a token known to the ledger.
type Token struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}
