package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/defistate/midmatch-go/protocols/feepool/feemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr  = ":8546"
	DefaultMetricsAddr = ":9100"
)

// DaemonConfig is the YAML configuration of midmatchd.
type DaemonConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
	BufferSize  uint          `yaml:"buffer_size"`
	Factory     string        `yaml:"factory"`
	Owner       string        `yaml:"owner"`
	Tokens      []TokenConfig `yaml:"tokens"`
	Pairs       []PairConfig  `yaml:"pairs"`
}

// TokenConfig registers a token with the ledger and seeds balances.
type TokenConfig struct {
	Address  string       `yaml:"address"`
	Name     string       `yaml:"name"`
	Symbol   string       `yaml:"symbol"`
	Decimals uint8        `yaml:"decimals"`
	Mints    []MintConfig `yaml:"mints"`
}

type MintConfig struct {
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
}

// PairConfig creates a pair at startup together with its fee tiers.
type PairConfig struct {
	TokenA      string       `yaml:"token_a"`
	TokenB      string       `yaml:"token_b"`
	ExternalRef string       `yaml:"external_ref"`
	Pools       []PoolConfig `yaml:"pools"`
}

// PoolConfig is one fee tier. Fee and ProtocolFee accept "0.003" or "0.3%".
type PoolConfig struct {
	Token       string `yaml:"token"`
	Fee         string `yaml:"fee"`
	ProtocolFee string `yaml:"protocol_fee"`
}

// LoadConfig reads and validates the YAML file at path.
func LoadConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document, filling in defaults.
func Parse(data []byte) (*DaemonConfig, error) {
	cfg := &DaemonConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *DaemonConfig) validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Factory != "" && !common.IsHexAddress(c.Factory) {
		return fmt.Errorf("config: invalid factory address %q", c.Factory)
	}
	if !common.IsHexAddress(c.Owner) {
		return errors.New("config: owner must be a hex address")
	}
	for i, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("config: tokens[%d]: invalid address %q", i, t.Address)
		}
		for j, m := range t.Mints {
			if !common.IsHexAddress(m.To) {
				return fmt.Errorf("config: tokens[%d].mints[%d]: invalid recipient %q", i, j, m.To)
			}
			if _, err := ParseAmount(m.Amount); err != nil {
				return fmt.Errorf("config: tokens[%d].mints[%d]: %w", i, j, err)
			}
		}
	}
	for i, p := range c.Pairs {
		if !common.IsHexAddress(p.TokenA) || !common.IsHexAddress(p.TokenB) {
			return fmt.Errorf("config: pairs[%d]: token_a and token_b must be hex addresses", i)
		}
		if p.ExternalRef != "" && !common.IsHexAddress(p.ExternalRef) {
			return fmt.Errorf("config: pairs[%d]: invalid external_ref %q", i, p.ExternalRef)
		}
		for j, pool := range p.Pools {
			if !strings.EqualFold(pool.Token, p.TokenA) && !strings.EqualFold(pool.Token, p.TokenB) {
				return fmt.Errorf("config: pairs[%d].pools[%d]: token %q is not in the pair", i, j, pool.Token)
			}
			if _, _, err := pool.Rates(); err != nil {
				return fmt.Errorf("config: pairs[%d].pools[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; empty means info.
func (c *DaemonConfig) SlogLevel() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Rates parses the fee key and protocol rate of the tier. An empty
// protocol_fee is zero.
func (p PoolConfig) Rates() (feepool.FeeKey, feepool.Rate, error) {
	fee, err := feemath.ParseFeeKey(p.Fee)
	if err != nil {
		return 0, 0, fmt.Errorf("fee: %w", err)
	}
	if p.ProtocolFee == "" {
		return fee, 0, nil
	}
	protocolFee, err := feemath.ParseRate(p.ProtocolFee)
	if err != nil {
		return 0, 0, fmt.Errorf("protocol_fee: %w", err)
	}
	return fee, protocolFee, nil
}

// ParseAmount parses a base-10 or 0x-prefixed token amount.
func ParseAmount(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return v, nil
}
