package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Alpaca.KeyID = "key"
	cfg.Alpaca.SecretKey = "secret"
	return cfg
}

func TestDefaultsValidateOnceCredentialsSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	bare := Defaults()
	err := bare.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpaca: key_id and secret_key must be set")
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "backtest"
	cfg.LogLevel = "loud"
	cfg.Universe.MinPrice = 20
	cfg.Cache.Backend = "redis"
	cfg.Strategy.MACDSlow = cfg.Strategy.MACDFast

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "backtest"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "universe: min_price must be below max_price")
	assert.Contains(t, msg, "cache: backend redis requires redis.enabled")
	assert.Contains(t, msg, "strategy: macd periods")
}

func TestValidateFundamentalsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Universe.USCompanies = true
	cfg.Universe.RequireFinancials = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "polygon: api_key")
	assert.Contains(t, err.Error(), "iex: token")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momobot.toml")
	body := `
mode = "scan"

[alpaca]
key_id = "file-key"

[strategy]
min_gap = 0.05
entry_to = 45

[universe]
max_bar_age = "72h"

[cache]
backend = "redis"
memo_ttl = "30s"

[redis]
enabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, "file-key", cfg.Alpaca.KeyID)
	assert.Equal(t, 0.05, cfg.Strategy.MinGap)
	assert.Equal(t, 45, cfg.Strategy.EntryTo)
	assert.Equal(t, 16, cfg.Strategy.EntryFrom, "untouched fields keep their defaults")
	assert.Equal(t, 72*time.Hour, cfg.Universe.MaxBarAge.Duration)
	assert.Equal(t, 30*time.Second, cfg.Cache.MemoTTL.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "America/New_York", cfg.Timezone)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Strategy, cfg.Strategy)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momobot.toml")
	require.NoError(t, os.WriteFile(path, []byte("[alpaca]\nkey_id = \"file-key\"\n"), 0o644))

	t.Setenv("MOMOBOT_ALPACA_KEY_ID", "env-key")
	t.Setenv("MOMOBOT_STRATEGY_MAX_NOTIONAL", "250")
	t.Setenv("MOMOBOT_RETRY_UNIT", "250ms")
	t.Setenv("MOMOBOT_NOTIFY_EVENTS", " fill , error,,")
	t.Setenv("MOMOBOT_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Alpaca.KeyID)
	assert.Equal(t, 250.0, cfg.Strategy.MaxNotional)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Unit.Duration)
	assert.Equal(t, []string{"fill", "error"}, cfg.Notify.Events)
	assert.Equal(t, 8000, cfg.Server.Port, "unparsable values are ignored")
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Alpaca.KeyID)
	assert.Equal(t, "***", out.Alpaca.SecretKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Polygon.APIKey, "empty secrets stay empty")

	out.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
	assert.Equal(t, "key", cfg.Alpaca.KeyID)
}
