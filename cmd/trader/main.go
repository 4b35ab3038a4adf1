// Trader - one venue session, one strategy, one contract at a time
//
// Connects to the Deriv-style WebSocket API, authorizes with DERIV_TOKEN,
// streams ticks into a rolling snapshot and lets the selected strategy
// decide when to buy a rise/fall contract. Stakes follow the martingale
// ladder until a win resets them or the cap stops the run; the ladder starts
// from the loss streak in the account's profit table.
//
// Exit codes: 0 done or stopped by risk limits, 1 failure, 2 rejected token.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/derivbot/bot"
	"github.com/web3guy0/derivbot/core"
	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/internal/config"
	"github.com/web3guy0/derivbot/risk"
	"github.com/web3guy0/derivbot/session"
	"github.com/web3guy0/derivbot/storage"
	"github.com/web3guy0/derivbot/strategy"
	"github.com/web3guy0/derivbot/supervisor"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// The server passes everything through the environment
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Token == "" {
		log.Error().Msg("DERIV_TOKEN is required")
		return 1
	}

	label := supervisor.Mask(cfg.Token)
	log.Logger = log.With().Str("token", label).Logger()

	// Strategy
	configs, err := strategy.LoadConfig(cfg.StrategyFile)
	if err != nil {
		log.Error().Err(err).Str("file", cfg.StrategyFile).Msg("Failed to load strategies")
		return 1
	}
	strat, err := strategy.Select(configs, cfg.Strategy)
	if err != nil {
		log.Error().Err(err).Msg("Failed to select strategy")
		return 1
	}

	// Stake ladder
	rs, err := risk.NewState(risk.Config{
		BaseStake:      cfg.BaseStake,
		MinStake:       cfg.MinStake,
		MaxMultiple:    cfg.MaxStakeMultiple,
		Factor:         cfg.MartingaleFactor,
		MaxEscalations: cfg.MaxEscalations,
		MaxSessionLoss: cfg.MaxSessionLoss,
		HedgeAfter:     cfg.HedgeAfter,
		HedgeFactor:    cfg.HedgeFactor,
	})
	if err != nil {
		log.Error().Err(err).Msg("Invalid stake configuration")
		return 1
	}

	// Transport & session
	endpoint, err := cfg.URL()
	if err != nil {
		log.Error().Err(err).Msg("Invalid endpoint")
		return 1
	}
	tcfg := feeds.DefaultTransportConfig(endpoint)
	tcfg.BaseDelay = cfg.ReconnectBaseDelay
	tcfg.MaxDelay = cfg.ReconnectMaxDelay
	tcfg.StableAfter = cfg.ReconnectStableAfter
	tcfg.MaxRetries = cfg.ReconnectMaxRetries
	tcfg.SendRate = cfg.SendRatePerSec

	transport := feeds.NewTransport(tcfg)
	sess := session.New(transport)
	sess.SetTimeout(cfg.RequestTimeout)

	log.Info().
		Str("version", version).
		Str("symbol", cfg.Symbol).
		Str("strategy", strat.Name()).
		Str("base_stake", cfg.BaseStake.String()).
		Bool("continuous", cfg.Continuous).
		Msg("⚡ Trader starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transport.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to connect")
		return 1
	}
	defer transport.Close()

	ctrl := core.NewController(core.Config{
		Token:               cfg.Token,
		Symbol:              cfg.Symbol,
		Currency:            cfg.Currency,
		HistoryCount:        cfg.HistoryCount,
		WindowSize:          cfg.WindowSize,
		CandleBucket:        cfg.CandleBucket,
		Duration:            cfg.ContractDuration,
		DurationUnit:        cfg.ContractUnit,
		MaxContractDuration: cfg.MaxContractDuration,
		Cooldown:            cfg.Cooldown,
		Continuous:          cfg.Continuous,
		MaxOpFailures:       cfg.MaxOpFailures,
		ProfitTableLimit:    cfg.ProfitTableLimit,
	}, sess, strat, rs)

	// Journal
	if cfg.DatabasePath != "" {
		db, err := storage.New(cfg.DatabasePath)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Journal unavailable, trading without it")
		} else {
			defer db.Close()
			ctrl.SetJournal(db)
		}
	}

	// Notifications only; the server owns the command loop
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable")
		} else {
			tg.SetLabel(label)
			ctrl.SetTradeNotifier(tg)
		}
	}

	err = ctrl.Run(ctx)
	log.Info().Str("run_id", ctrl.RunID()).Msg(core.Summary(rs.Snapshot()))

	var authErr *session.AuthError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, core.ErrStopped):
		log.Warn().Err(err).Msg("🛑 Stopped by risk limits")
		return 0
	case errors.As(err, &authErr):
		log.Error().Str("code", authErr.Code).Msg("❌ Token rejected")
		return 2
	default:
		log.Error().Err(err).Msg("❌ Trader failed")
		return 1
	}
}
