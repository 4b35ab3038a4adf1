// Server - subscriber registry and trader supervisor behind an HTTP API
//
// Keeps the list of subscribed venue tokens and, on /trade, launches one
// trader process per token. A token never has two traders at once; slots
// end when the trader exits, on /cancel, or at the per-slot deadline.
// /engine launches one continuous trader per token in a separate pool with
// no deadline; those stop on /unsubscribe or shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/web3guy0/derivbot/api"
	"github.com/web3guy0/derivbot/bot"
	"github.com/web3guy0/derivbot/internal/config"
	"github.com/web3guy0/derivbot/storage"
	"github.com/web3guy0/derivbot/strategy"
	"github.com/web3guy0/derivbot/supervisor"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info().
		Str("version", version).
		Str("port", cfg.Port).
		Str("trader", cfg.TraderBin).
		Dur("slot_deadline", cfg.SlotDeadline).
		Msg("⚡ Derivbot server starting...")

	// Database
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	registry, err := supervisor.NewRegistry(db, cfg.Subscribers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load subscribers")
	}
	log.Info().Int("subscribers", registry.Len()).Msg("📋 Subscribers loaded")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Supervisors launch the trader binary with the token in its environment
	sup := supervisor.New(traderCommand(cfg.TraderBin, false), supervisor.Config{
		Deadline: cfg.SlotDeadline,
		Grace:    cfg.CancelGrace,
	}, supervisor.NewMetrics(reg, "trader"))

	engines := supervisor.New(traderCommand(cfg.TraderBin, true), supervisor.Config{
		Deadline: -1,
		Grace:    cfg.CancelGrace,
	}, supervisor.NewMetrics(reg, "engine"))

	validate := func(name string) error {
		configs, err := strategy.LoadConfig(cfg.StrategyFile)
		if err != nil {
			return fmt.Errorf("load strategies: %w", err)
		}
		_, err = strategy.Select(configs, name)
		return err
	}

	if err := validate(cfg.EngineStrategy); err != nil {
		log.Fatal().Err(err).Str("strategy", cfg.EngineStrategy).Msg("Invalid engine strategy")
	}

	srv := api.NewServer(sup, registry, api.Options{
		ValidateStrategy: validate,
		Gatherer:         reg,
		RateLimit:        rate.Limit(10),
		RateBurst:        20,
		Engines:          engines,
		EngineStrategy:   cfg.EngineStrategy,
	})

	// Telegram command loop
	var telegramBot *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegramBot, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable")
		} else {
			telegramBot.SetStatsProvider(db)
			telegramBot.SetStatusFunc(func() []string {
				var out []string
				for _, s := range sup.Status() {
					out = append(out, fmt.Sprintf("%s %s (%s)", s.Token, s.Strategy, time.Since(s.StartedAt).Round(time.Second)))
				}
				for _, s := range engines.Status() {
					out = append(out, fmt.Sprintf("%s engine %s (%s)", s.Token, s.Strategy, time.Since(s.StartedAt).Round(time.Second)))
				}
				return out
			})
			telegramBot.Start()
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("🌐 HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CancelGrace+10*time.Second)
	defer cancel()

	if telegramBot != nil {
		telegramBot.Stop()
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := sup.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Some traders did not stop in time")
	}
	if err := engines.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Some engines did not stop in time")
	}

	log.Info().Msg("👋 Server stopped")
}

// traderCommand runs the trader binary for one token; engines trade
// continuously
func traderCommand(bin string, continuous bool) supervisor.CommandFunc {
	return func(spec supervisor.LaunchSpec) *exec.Cmd {
		cmd := exec.Command(bin)
		cmd.Env = append(os.Environ(), "DERIV_TOKEN="+spec.Token)
		if spec.Strategy != "" {
			cmd.Env = append(cmd.Env, "STRATEGY="+spec.Strategy)
		}
		if continuous {
			cmd.Env = append(cmd.Env, "CONTINUOUS=true")
		}
		return cmd
	}
}
