package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/defistate/midmatch-go/protocols/feepool/feemath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
listen_addr: ":9000"
log_level: debug
owner: "0x0000000000000000000000000000000000000001"
tokens:
  - address: "0x0000000000000000000000000000000000000100"
    symbol: USDC
    decimals: 6
    mints:
      - to: "0x00000000000000000000000000000000000a11ce"
        amount: "1000000000"
  - address: "0x0000000000000000000000000000000000000200"
    symbol: WETH
    decimals: 18
pairs:
  - token_a: "0x0000000000000000000000000000000000000200"
    token_b: "0x0000000000000000000000000000000000000100"
    pools:
      - token: "0x0000000000000000000000000000000000000100"
        fee: "0.3%"
        protocol_fee: "0.1"
      - token: "0x0000000000000000000000000000000000000100"
        fee: "0.0005"
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr)
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	require.Len(t, cfg.Tokens, 2)
	require.Len(t, cfg.Tokens[0].Mints, 1)
	amount, err := ParseAmount(cfg.Tokens[0].Mints[0].Amount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), amount.Uint64())

	require.Len(t, cfg.Pairs, 1)
	require.Len(t, cfg.Pairs[0].Pools, 2)
	fee, protocolFee, err := cfg.Pairs[0].Pools[0].Rates()
	require.NoError(t, err)
	assert.Equal(t, feepool.FeeKey(300), fee)
	assert.Equal(t, feepool.Rate(10_000), protocolFee)

	fee, protocolFee, err = cfg.Pairs[0].Pools[1].Rates()
	require.NoError(t, err)
	assert.Equal(t, feepool.FeeKey(50), fee)
	assert.Equal(t, feepool.Rate(0), protocolFee)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParse_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "Malformed YAML",
			yaml:    "owner: [",
			wantErr: "failed to parse config",
		},
		{
			name:    "Missing Owner",
			yaml:    "listen_addr: \":1\"",
			wantErr: "owner must be a hex address",
		},
		{
			name:    "Bad Log Level",
			yaml:    "owner: \"0x0000000000000000000000000000000000000001\"\nlog_level: loud",
			wantErr: "invalid log_level",
		},
		{
			name: "Bad Mint Amount",
			yaml: `
owner: "0x0000000000000000000000000000000000000001"
tokens:
  - address: "0x0000000000000000000000000000000000000100"
    mints:
      - to: "0x0000000000000000000000000000000000000002"
        amount: "-5"
`,
			wantErr: "invalid amount",
		},
		{
			name: "Pool Token Not In Pair",
			yaml: `
owner: "0x0000000000000000000000000000000000000001"
pairs:
  - token_a: "0x0000000000000000000000000000000000000100"
    token_b: "0x0000000000000000000000000000000000000200"
    pools:
      - token: "0x0000000000000000000000000000000000000300"
        fee: "0.003"
`,
			wantErr: "is not in the pair",
		},
		{
			name: "Reserved Fee",
			yaml: `
owner: "0x0000000000000000000000000000000000000001"
pairs:
  - token_a: "0x0000000000000000000000000000000000000100"
    token_b: "0x0000000000000000000000000000000000000200"
    pools:
      - token: "0x0000000000000000000000000000000000000100"
        fee: "0"
`,
			wantErr: "fee",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestPoolConfig_Rates(t *testing.T) {
	_, _, err := PoolConfig{Fee: "0"}.Rates()
	assert.ErrorIs(t, err, feepool.ErrReservedFee)

	_, _, err = PoolConfig{Fee: "0.003", ProtocolFee: "2"}.Rates()
	assert.ErrorIs(t, err, feemath.ErrRateTooHigh)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("0x10")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), v.Uint64())

	_, err = ParseAmount("0x1" + strings.Repeat("0", 64))
	assert.ErrorContains(t, err, "overflows")

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}
