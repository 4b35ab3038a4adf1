package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("SUBSCRIBERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stpRNG", cfg.Symbol)
	assert.Equal(t, 5, cfg.HedgeAfter)
	assert.True(t, decimal.NewFromInt(2).Equal(cfg.HedgeFactor))
	assert.Equal(t, 5, cfg.ProfitTableLimit)
	assert.Equal(t, "slope", cfg.EngineStrategy)
	assert.True(t, decimal.NewFromInt(1).Equal(cfg.BaseStake))
	assert.Equal(t, 2*time.Minute, cfg.SlotDeadline)
	assert.Equal(t, 3*time.Second, cfg.CancelGrace)
	assert.False(t, cfg.Continuous)
	assert.Empty(t, cfg.Subscribers)

	u, err := cfg.URL()
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.derivws.com/websockets/v3?app_id=1089", u)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BASE_STAKE", "0.5")
	t.Setenv("MARTINGALE_FACTOR", "2.2")
	t.Setenv("CONTINUOUS", "yes")
	t.Setenv("TRADE_COOLDOWN", "5s")
	t.Setenv("SUBSCRIBERS", " tok-a, ,tok-b ")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("MAX_ESCALATIONS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, decimal.NewFromFloat(0.5).Equal(cfg.BaseStake))
	assert.True(t, decimal.NewFromFloat(2.2).Equal(cfg.MartingaleFactor))
	assert.True(t, cfg.Continuous)
	assert.Equal(t, 5*time.Second, cfg.Cooldown)
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.Subscribers)
	assert.Equal(t, int64(-1001), cfg.TelegramChatID)
	assert.Zero(t, cfg.MaxEscalations, "bad numbers fall back to the default")
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"BASE_STAKE":         "0",
		"MAX_STAKE_MULTIPLE": "0.5",
		"MARTINGALE_FACTOR":  "0.9",
		"TELEGRAM_CHAT_ID":   "chat",
		"HEDGE_FACTOR":       "0.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
