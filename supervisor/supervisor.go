package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROCESS SUPERVISOR - one trader process per token
// ═══════════════════════════════════════════════════════════════════════════════
//
// Slot lifecycle:
//   Start → running → exit | error | SIGTERM (cancel) | SIGKILL (grace/deadline)
//
// The goroutine waiting on the process is the only one that removes a slot,
// so a slot disappears exactly once whatever ended it.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNotRunning means no live slot exists for the token
	ErrNotRunning = errors.New("no trader running for token")

	// ErrShutdown means the supervisor no longer accepts launches
	ErrShutdown = errors.New("supervisor shut down")
)

// Status of a launch request
type Status string

const (
	StatusStarted        Status = "started"
	StatusAlreadyRunning Status = "already running"
)

// LaunchSpec describes one trader process
type LaunchSpec struct {
	Token    string
	Strategy string
}

// CommandFunc builds the process for a launch; it must not start it
type CommandFunc func(spec LaunchSpec) *exec.Cmd

// Config bounds slot lifetimes
type Config struct {
	Deadline time.Duration // Hard ceiling per slot (default 2m, negative for none)
	Grace    time.Duration // SIGTERM to SIGKILL (default 3s)
}

// SlotInfo describes a live slot
type SlotInfo struct {
	Token     string    `json:"token"` // Masked
	Strategy  string    `json:"strategy,omitempty"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

type slot struct {
	token    string
	strategy string
	cmd      *exec.Cmd
	started  time.Time
	deadline *time.Timer
	done     chan struct{} // Closed after the slot is removed

	mu     sync.Mutex
	reason string // First termination cause wins
}

func (s *slot) markReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason == "" {
		s.reason = reason
	}
}

func (s *slot) endReason(waitErr error) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.reason != "":
		return s.reason
	case waitErr != nil:
		return "error"
	}
	return "exit"
}

type Supervisor struct {
	mu      sync.Mutex
	slots   map[string]*slot
	closed  bool
	command CommandFunc
	cfg     Config
	metrics *Metrics
	wg      sync.WaitGroup
}

// New creates a supervisor; metrics may be nil
func New(command CommandFunc, cfg Config, metrics *Metrics) *Supervisor {
	if cfg.Deadline == 0 {
		cfg.Deadline = 2 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 3 * time.Second
	}
	return &Supervisor{
		slots:   make(map[string]*slot),
		command: command,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Start launches a trader unless one is already running for the token
func (s *Supervisor) Start(spec LaunchSpec) (Status, error) {
	if spec.Token == "" {
		return "", fmt.Errorf("empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrShutdown
	}
	if _, ok := s.slots[spec.Token]; ok {
		return StatusAlreadyRunning, nil
	}

	cmd := s.command(spec)
	stdout := newLineLogger(spec.Token, "stdout")
	stderr := newLineLogger(spec.Token, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = s.cfg.Grace

	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Str("token", Mask(spec.Token)).Msg("Trader failed to start")
		return "", fmt.Errorf("start trader: %w", err)
	}

	sl := &slot{
		token:    spec.Token,
		strategy: spec.Strategy,
		cmd:      cmd,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	if s.cfg.Deadline > 0 {
		sl.deadline = time.AfterFunc(s.cfg.Deadline, func() {
			log.Warn().Str("token", Mask(sl.token)).Dur("deadline", s.cfg.Deadline).Msg("⏰ Trader hit its deadline")
			s.terminate(sl, "deadline")
		})
	}
	s.slots[spec.Token] = sl

	if s.metrics != nil {
		s.metrics.started.Inc()
		s.metrics.running.Set(float64(len(s.slots)))
	}

	log.Info().
		Str("token", Mask(spec.Token)).
		Str("strategy", spec.Strategy).
		Int("pid", cmd.Process.Pid).
		Msg("🚀 Trader started")

	s.wg.Add(1)
	go s.wait(sl, stdout, stderr)

	return StatusStarted, nil
}

// wait is the single owner of slot removal
func (s *Supervisor) wait(sl *slot, outs ...*lineLogger) {
	defer s.wg.Done()

	err := sl.cmd.Wait()
	if sl.deadline != nil {
		sl.deadline.Stop()
	}
	for _, o := range outs {
		o.Flush()
	}

	s.mu.Lock()
	if s.slots[sl.token] == sl {
		delete(s.slots, sl.token)
	}
	running := len(s.slots)
	s.mu.Unlock()

	reason := sl.endReason(err)
	if s.metrics != nil {
		s.metrics.running.Set(float64(running))
		s.metrics.ended.WithLabelValues(reason).Inc()
	}

	evt := log.Info()
	if reason == "error" || reason == "deadline" {
		evt = log.Warn()
	}
	evt.
		Err(err).
		Str("token", Mask(sl.token)).
		Str("reason", reason).
		Int("exit_code", sl.cmd.ProcessState.ExitCode()).
		Dur("ran", time.Since(sl.started)).
		Msg("🏁 Trader exited")

	close(sl.done)
}

// terminate sends SIGTERM, then SIGKILL after the grace period, and returns
// once the slot is gone
func (s *Supervisor) terminate(sl *slot, reason string) {
	sl.markReason(reason)

	select {
	case <-sl.done:
		return
	default:
	}

	if err := sl.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Debug().Err(err).Str("token", Mask(sl.token)).Msg("SIGTERM failed")
	}

	grace := time.NewTimer(s.cfg.Grace)
	defer grace.Stop()

	select {
	case <-sl.done:
		return
	case <-grace.C:
	}

	log.Warn().Str("token", Mask(sl.token)).Dur("grace", s.cfg.Grace).Msg("🔪 Trader ignored SIGTERM, killing")
	if err := sl.cmd.Process.Kill(); err != nil {
		log.Debug().Err(err).Str("token", Mask(sl.token)).Msg("SIGKILL failed")
	}
	<-sl.done
}

func (s *Supervisor) lookup(token string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[token]
}

// Cancel stops the trader for token and returns once it has exited
func (s *Supervisor) Cancel(ctx context.Context, token string) error {
	sl := s.lookup(token)
	if sl == nil {
		return ErrNotRunning
	}

	done := make(chan struct{})
	go func() {
		s.terminate(sl, "cancelled")
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAll stops every trader in parallel and returns the masked tokens
// that were stopped
func (s *Supervisor) CancelAll(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	tokens := make([]string, 0, len(s.slots))
	for token := range s.slots {
		tokens = append(tokens, token)
	}
	s.mu.Unlock()
	sort.Strings(tokens)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var stopped []string
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			err := s.Cancel(gctx, token)
			if errors.Is(err, ErrNotRunning) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("cancel %s: %w", Mask(token), err)
			}
			mu.Lock()
			stopped = append(stopped, Mask(token))
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Strings(stopped)
	return stopped, err
}

// Running reports whether a slot is live for token
func (s *Supervisor) Running(token string) bool {
	return s.lookup(token) != nil
}

// Status lists live slots, oldest first
func (s *Supervisor) Status() []SlotInfo {
	s.mu.Lock()
	out := make([]SlotInfo, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, SlotInfo{
			Token:     Mask(sl.token),
			Strategy:  sl.strategy,
			PID:       sl.cmd.Process.Pid,
			StartedAt: sl.started,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Shutdown refuses new launches, stops every trader and waits for the
// wait goroutines, all within ctx
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	log.Info().Int("running", len(s.Status())).Msg("Supervisor shutting down")

	if _, err := s.CancelAll(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mask shortens a token for logs and API output
func Mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
