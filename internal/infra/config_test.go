package infra

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"scalper_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  name: scalper
exchange:
  mode: paper
  rest_url: https://api.binance.com
  ws_url: wss://stream.binance.com:9443
pair:
  base: BTC
  quote: USDT
strategy:
  spend_fraction: 0.25
  channel_length_multiple: 1.5
paper:
  balances:
    USDT: 1000
    BTC: "0.5"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_DefaultsAndFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol())
	assert.True(t, cfg.IsPaper())
	assert.Equal(t, "0.25", cfg.Strategy.SpendFraction.String())
	assert.Equal(t, "1.5", cfg.Strategy.ChannelLengthMultiple.String())
	assert.Equal(t, 3, cfg.Strategy.MinWindow, "default kept")
	assert.Equal(t, "0.99", cfg.Strategy.UpperQuantile.String())
	assert.Equal(t, "0.5", cfg.Paper.Balances["BTC"].String())
	assert.Equal(t, 1024, cfg.Engine.InboxSize)
	assert.Equal(t, 2000, cfg.Strategy.MaxBuffer, "buffer is capped unless the file says otherwise")
	assert.Equal(t, int64(10000), cfg.RequestTimeout().Milliseconds())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BASE_ASSET", "eth")
	t.Setenv("QUOTE_ASSET", "btc")
	t.Setenv("SCALPER_MODE", "LIVE")
	t.Setenv("API_KEY", "key")
	t.Setenv("API_SECRET", "secret")

	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, "ETHBTC", cfg.Symbol())
	assert.False(t, cfg.IsPaper())
	assert.Equal(t, "key", cfg.Exchange.APIKey)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigNotFound))
	assert.False(t, domain.IsRetriable(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"spend fraction one", func(c *Config) { c.Strategy.SpendFraction = d("1") }, "spend_fraction"},
		{"spend fraction zero", func(c *Config) { c.Strategy.SpendFraction = d("0") }, "spend_fraction"},
		{"multiple below one", func(c *Config) { c.Strategy.ChannelLengthMultiple = d("0.5") }, "channel_length_multiple"},
		{"quantiles crossed", func(c *Config) { c.Strategy.LowerQuantile = d("0.9"); c.Strategy.UpperQuantile = d("0.1") }, "lower_quantile"},
		{"bad mode", func(c *Config) { c.Exchange.Mode = "demo" }, "mode"},
		{"http ws url", func(c *Config) { c.Exchange.WSURL = "https://stream.binance.com" }, "ws_url"},
		{"same assets", func(c *Config) { c.Pair.Quote = "btc" }, "pair"},
		{"live without keys", func(c *Config) { c.Exchange.Mode = ModeLive }, "api_key"},
		{"negative paper balance", func(c *Config) { c.Paper.Balances = map[string]decimal.Decimal{"BTC": d("-1")} }, "paper.balances.BTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var ce *domain.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Contains(t, ce.Field, tt.field)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Exchange.Mode = ModePaper
	cfg.Pair.Base = "BTC"
	cfg.Pair.Quote = "USDT"
	return cfg
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }
