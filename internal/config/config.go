package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the trader and the server
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Venue
	Endpoint string
	AppID    string
	Token    string // Never logged

	// Contract
	Symbol              string
	Currency            string
	ContractDuration    int
	ContractUnit        string
	MaxContractDuration time.Duration

	// Stake & risk
	BaseStake        decimal.Decimal
	MinStake         decimal.Decimal
	MaxStakeMultiple decimal.Decimal
	MartingaleFactor decimal.Decimal
	MaxEscalations   int
	MaxSessionLoss   decimal.Decimal
	HedgeAfter       int
	HedgeFactor      decimal.Decimal
	ProfitTableLimit int

	// Controller
	Cooldown      time.Duration
	Continuous    bool
	MaxOpFailures int
	HistoryCount  int
	WindowSize    int
	CandleBucket  time.Duration
	Strategy      string
	StrategyFile  string

	// Session transport
	RequestTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectStableAfter time.Duration
	ReconnectMaxRetries  int
	SendRatePerSec       float64

	// Server & supervisor
	Port           string
	TraderBin      string
	SlotDeadline   time.Duration
	CancelGrace    time.Duration
	EngineStrategy string
	Subscribers    []string

	// Mode
	Debug bool

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Venue
		Endpoint: getEnv("DERIV_ENDPOINT", "wss://ws.derivws.com/websockets/v3"),
		AppID:    getEnv("DERIV_APP_ID", "1089"),
		Token:    os.Getenv("DERIV_TOKEN"),

		// Contract
		Symbol:              getEnv("SYMBOL", "stpRNG"),
		Currency:            getEnv("CURRENCY", "USD"),
		ContractDuration:    getEnvInt("CONTRACT_DURATION", 15),
		ContractUnit:        getEnv("CONTRACT_DURATION_UNIT", "s"),
		MaxContractDuration: getEnvDuration("MAX_CONTRACT_DURATION", 90*time.Second),

		// Stake & risk
		BaseStake:        getEnvDecimal("BASE_STAKE", decimal.NewFromInt(1)),
		MinStake:         getEnvDecimal("MIN_STAKE", decimal.NewFromFloat(0.35)),
		MaxStakeMultiple: getEnvDecimal("MAX_STAKE_MULTIPLE", decimal.NewFromInt(8)),
		MartingaleFactor: getEnvDecimal("MARTINGALE_FACTOR", decimal.NewFromInt(2)),
		MaxEscalations:   getEnvInt("MAX_ESCALATIONS", 0),
		MaxSessionLoss:   getEnvDecimal("MAX_SESSION_LOSS", decimal.Zero),
		HedgeAfter:       getEnvInt("HEDGE_AFTER", 5),
		HedgeFactor:      getEnvDecimal("HEDGE_FACTOR", decimal.NewFromInt(2)),
		ProfitTableLimit: getEnvInt("PROFIT_TABLE_LIMIT", 5),

		// Controller
		Cooldown:      getEnvDuration("TRADE_COOLDOWN", 30*time.Second),
		Continuous:    getEnvBool("CONTINUOUS", false),
		MaxOpFailures: getEnvInt("MAX_OP_FAILURES", 3),
		HistoryCount:  getEnvInt("HISTORY_COUNT", 20),
		WindowSize:    getEnvInt("WINDOW_SIZE", 300),
		CandleBucket:  getEnvDuration("CANDLE_BUCKET", time.Minute),
		Strategy:      os.Getenv("STRATEGY"),
		StrategyFile:  getEnv("STRATEGY_FILE", "strategies.yaml"),

		// Session transport
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ReconnectBaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectStableAfter: getEnvDuration("RECONNECT_STABLE_AFTER", time.Minute),
		ReconnectMaxRetries:  getEnvInt("RECONNECT_MAX_RETRIES", 5),
		SendRatePerSec:       getEnvFloat("SEND_RATE_PER_SEC", 20),

		// Server & supervisor
		Port:           getEnv("PORT", "3000"),
		TraderBin:      getEnv("TRADER_BIN", "./trader"),
		SlotDeadline:   getEnvDuration("SLOT_DEADLINE", 2*time.Minute),
		CancelGrace:    getEnvDuration("CANCEL_GRACE", 3*time.Second),
		EngineStrategy: getEnv("ENGINE_STRATEGY", "slope"),
		Subscribers:    getEnvList("SUBSCRIBERS"),

		// Mode
		Debug: getEnvBool("DEBUG", false),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/derivbot.db"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the trader cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("DERIV_ENDPOINT is required")
	case !c.BaseStake.IsPositive():
		return fmt.Errorf("BASE_STAKE must be positive, got %s", c.BaseStake)
	case c.MinStake.IsNegative():
		return fmt.Errorf("MIN_STAKE must not be negative, got %s", c.MinStake)
	case c.MaxStakeMultiple.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("MAX_STAKE_MULTIPLE must be >= 1, got %s", c.MaxStakeMultiple)
	case c.MartingaleFactor.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("MARTINGALE_FACTOR must be >= 1, got %s", c.MartingaleFactor)
	case c.ContractDuration <= 0:
		return fmt.Errorf("CONTRACT_DURATION must be positive, got %d", c.ContractDuration)
	case c.HedgeAfter < 0:
		return fmt.Errorf("HEDGE_AFTER must not be negative, got %d", c.HedgeAfter)
	case c.HedgeAfter > 0 && c.HedgeFactor.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("HEDGE_FACTOR must be >= 1, got %s", c.HedgeFactor)
	case c.WindowSize <= 0:
		return fmt.Errorf("WINDOW_SIZE must be positive, got %d", c.WindowSize)
	}
	return nil
}

// URL returns the venue socket URL with the app id attached
func (c *Config) URL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid DERIV_ENDPOINT: %w", err)
	}
	if c.AppID != "" {
		q := u.Query()
		q.Set("app_id", c.AppID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
