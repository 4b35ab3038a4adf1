package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/web3guy0/derivbot/supervisor"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP BOUNDARY - subscribe / trade / cancel / stat
// ═══════════════════════════════════════════════════════════════════════════════

// Launcher runs one trader per token
type Launcher interface {
	Start(spec supervisor.LaunchSpec) (supervisor.Status, error)
	Cancel(ctx context.Context, token string) error
	CancelAll(ctx context.Context) ([]string, error)
	Status() []supervisor.SlotInfo
}

// Subscribers is the token registry
type Subscribers interface {
	Subscribe(token string) (bool, error)
	Unsubscribe(token string) (bool, error)
	Contains(token string) bool
	List() []string
	Len() int
}

// Options for the server
type Options struct {
	// ValidateStrategy rejects unknown ?strategy= names; nil accepts any
	ValidateStrategy func(name string) error
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	// RateLimit per client IP; zero disables
	RateLimit rate.Limit
	RateBurst int
	// Engines runs the continuous per-token engines behind /engine; nil
	// disables the endpoint
	Engines Launcher
	// EngineStrategy is the strategy every engine runs
	EngineStrategy string
}

// Server wires HTTP endpoints around the supervisor
type Server struct {
	Router   *gin.Engine
	launcher Launcher
	subs     Subscribers
	opts     Options
	started  time.Time
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// TradeResult is one token's outcome in a /trade report
type TradeResult struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

func NewServer(launcher Launcher, subs Subscribers, opts Options) *Server {
	r := gin.New()

	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	if opts.RateLimit > 0 {
		r.Use(RateLimitMiddleware(opts.RateLimit, opts.RateBurst))
	}

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		Router:   r,
		launcher: launcher,
		subs:     subs,
		opts:     opts,
		started:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	s.Router.POST("/subscribe", s.subscribe)
	s.Router.POST("/unsubscribe", s.unsubscribe)
	s.Router.POST("/check", s.check)

	s.Router.GET("/trade", s.trade)
	s.Router.GET("/cancel", s.cancel)
	s.Router.GET("/engine", s.engine)
	s.Router.GET("/stat", s.stat)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindToken(c *gin.Context) (string, bool) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return "", false
	}
	return req.Token, true
}

func (s *Server) subscribe(c *gin.Context) {
	token, ok := bindToken(c)
	if !ok {
		return
	}

	added, err := s.subs.Subscribe(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      supervisor.Mask(token),
		"subscribed": true,
		"added":      added,
	})
}

func (s *Server) unsubscribe(c *gin.Context) {
	token, ok := bindToken(c)
	if !ok {
		return
	}

	removed, err := s.subs.Unsubscribe(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cancelled := stopSlot(c.Request.Context(), s.launcher, token)
	body := gin.H{
		"token":        supervisor.Mask(token),
		"unsubscribed": removed,
		"cancelled":    cancelled,
	}
	if s.opts.Engines != nil {
		body["engine_stopped"] = stopSlot(c.Request.Context(), s.opts.Engines, token)
	}
	c.JSON(http.StatusOK, body)
}

// stopSlot cancels token's slot and reports whether one was stopped
func stopSlot(ctx context.Context, l Launcher, token string) bool {
	err := l.Cancel(ctx, token)
	if err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		log.Warn().Err(err).Str("token", supervisor.Mask(token)).Msg("Cancel on unsubscribe failed")
	}
	return err == nil
}

func (s *Server) check(c *gin.Context) {
	token, ok := bindToken(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": s.subs.Contains(token)})
}

func (s *Server) trade(c *gin.Context) {
	strategy := c.Query("strategy")
	if strategy != "" && s.opts.ValidateStrategy != nil {
		if err := s.opts.ValidateStrategy(strategy); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	tokens := s.subs.List()
	started, results := launchAll(s.launcher, tokens, strategy)

	log.Info().Int("subscribers", len(tokens)).Int("started", started).Str("strategy", strategy).Msg("📈 Trade requested")
	c.JSON(http.StatusOK, gin.H{"started": started, "results": results})
}

// engine starts a continuous engine for every subscriber without one
func (s *Server) engine(c *gin.Context) {
	if s.opts.Engines == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engines are disabled"})
		return
	}

	tokens := s.subs.List()
	started, results := launchAll(s.opts.Engines, tokens, s.opts.EngineStrategy)

	log.Info().Int("subscribers", len(tokens)).Int("started", started).Str("strategy", s.opts.EngineStrategy).Msg("⚙️ Engines requested")
	c.JSON(http.StatusOK, gin.H{"started": started, "results": results})
}

func launchAll(l Launcher, tokens []string, strategy string) (int, []TradeResult) {
	results := make([]TradeResult, 0, len(tokens))
	started := 0
	for _, token := range tokens {
		res := TradeResult{Token: supervisor.Mask(token)}
		status, err := l.Start(supervisor.LaunchSpec{Token: token, Strategy: strategy})
		switch {
		case err != nil:
			res.Status = "error: " + err.Error()
		default:
			res.Status = string(status)
			if status == supervisor.StatusStarted {
				started++
			}
		}
		results = append(results, res)
	}
	return started, results
}

func (s *Server) cancel(c *gin.Context) {
	tokens, err := s.launcher.CancelAll(c.Request.Context())
	if tokens == nil {
		tokens = []string{}
	}
	body := gin.H{"count": len(tokens), "tokens": tokens}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) stat(c *gin.Context) {
	uptime := time.Since(s.started)
	engines := []supervisor.SlotInfo{}
	if s.opts.Engines != nil {
		engines = append(engines, s.opts.Engines.Status()...)
	}
	c.JSON(http.StatusOK, gin.H{
		"subscribers":    s.subs.Len(),
		"running":        s.launcher.Status(),
		"engines":        engines,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": int64(uptime.Seconds()),
	})
}
