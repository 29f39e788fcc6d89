package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker/sim"
	"main/internal/market"
)

const sampleConfig = `{
  "instruments": ["ETH-USDT-SWAP", "BTC-USDT-SWAP"],
  "database": {"dsn": "host=localhost user=hft dbname=ticks"},
  "sim": {
    "cash": 10000,
    "makerFee": 0.0002,
    "takerFee": 0.0005,
    "slippage": 0.0001,
    "fillPolicy": "displayed",
    "latencyMs": 50,
    "reportBinMs": 1000
  },
  "live": {"queueSize": 8192, "maxRetries": 10, "submitPerSec": 20, "submitBurst": 5},
  "exchange": {"apiKey": "k", "secretKey": "s", "passphrase": "p", "simulated": true},
  "strategy": {
    "instrument": "ETH-USDT-SWAP",
    "notional": 1000,
    "sizeDigits": 2,
    "priceDigits": 2,
    "holdingMs": 60000,
    "eventIntervalMs": 100,
    "orderIdOffset": 7,
    "windowOfiMs": 500,
    "windowEmaMs": 5000,
    "theta": 1.5
  }
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadResolvesFullConfig(t *testing.T) {
	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []market.Instrument{"ETH-USDT-SWAP", "BTC-USDT-SWAP"}, loaded.Instruments)
	assert.Equal(t, "host=localhost user=hft dbname=ticks", loaded.DSN)

	assert.Equal(t, 10000.0, loaded.Sim.Cash)
	assert.Equal(t, 0.0002, loaded.Sim.Costs.MakerFee)
	assert.Equal(t, sim.FillDisplayedSize, loaded.Sim.Policy)
	assert.Equal(t, int64(50), loaded.Sim.LatencyMs)

	assert.Equal(t, 8192, loaded.Live.QueueSize)
	assert.Equal(t, loaded.Instruments, loaded.Live.Instruments)

	assert.Equal(t, "k", loaded.Exchange.APIKey)
	assert.True(t, loaded.Exchange.Simulated)

	require.NoError(t, loaded.ValidateLive())
	require.NoError(t, loaded.ValidateBacktest())
	assert.NotNil(t, loaded.BuildStrategy())
}

func TestLoadCredentialsFallBackToEnv(t *testing.T) {
	body := `{
	  "instruments": ["X"],
	  "strategy": {"instrument": "X", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}
	}`
	t.Setenv("OKX_API_KEY", "env-key")
	t.Setenv("OKX_SECRET_KEY", "env-secret")
	t.Setenv("OKX_PASSPHRASE", "env-pass")

	loaded, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "env-key", loaded.Exchange.APIKey)
	require.NoError(t, loaded.ValidateLive())

	// But replay still needs a tick source.
	assert.Error(t, loaded.ValidateBacktest())
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no instruments", `{"strategy": {"instrument": "X", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}}`},
		{"unknown fill policy", `{"instruments": ["X"], "sim": {"fillPolicy": "magic"},
			"strategy": {"instrument": "X", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}}`},
		{"strategy off instrument list", `{"instruments": ["X"],
			"strategy": {"instrument": "Y", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}}`},
		{"zero notional", `{"instruments": ["X"],
			"strategy": {"instrument": "X", "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}}`},
		{"offset too wide", `{"instruments": ["X"],
			"strategy": {"instrument": "X", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1, "orderIdOffset": 65536}}`},
		{"negative latency", `{"instruments": ["X"], "sim": {"latencyMs": -1},
			"strategy": {"instrument": "X", "notional": 1, "windowOfiMs": 1, "windowEmaMs": 1, "theta": 1}}`},
		{"malformed json", `{"instruments": [`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
