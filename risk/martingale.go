package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARTINGALE - stake state of one controller
// ═══════════════════════════════════════════════════════════════════════════════
//
// Win:  stake back to base, loss streak cleared
// Loss: stake x Factor, unless that would pass BaseStake x MaxMultiple or
//       the streak passed MaxEscalations; then the stake stays and the
//       controller must stop
// Hedge: from HedgeAfter consecutive losses on, the quoted stake is the
//       ladder stake x HedgeFactor, still capped
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrStakeCapExceeded means another escalation would break the stake cap
	ErrStakeCapExceeded = errors.New("stake cap exceeded")

	// ErrSessionLossLimit means cumulative losses reached the session limit
	ErrSessionLossLimit = errors.New("session loss limit reached")
)

// Config bounds the stake
type Config struct {
	BaseStake      decimal.Decimal
	MinStake       decimal.Decimal
	MaxMultiple    decimal.Decimal // Stake never exceeds BaseStake x MaxMultiple
	Factor         decimal.Decimal // Multiplier applied after a loss
	MaxEscalations int             // Consecutive escalations allowed (0 = cap only)
	MaxSessionLoss decimal.Decimal // Zero disables
	HedgeAfter     int             // Loss streak that turns the hedge on (0 = never)
	HedgeFactor    decimal.Decimal // Stake multiplier while hedging
}

// Validate checks the bounds are coherent
func (c Config) Validate() error {
	switch {
	case !c.BaseStake.IsPositive():
		return fmt.Errorf("base stake must be positive, got %s", c.BaseStake)
	case c.MinStake.IsNegative():
		return fmt.Errorf("min stake must not be negative, got %s", c.MinStake)
	case c.BaseStake.LessThan(c.MinStake):
		return fmt.Errorf("base stake %s below min stake %s", c.BaseStake, c.MinStake)
	case c.MaxMultiple.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("max stake multiple must be >= 1, got %s", c.MaxMultiple)
	case c.Factor.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("martingale factor must be >= 1, got %s", c.Factor)
	case c.MaxEscalations < 0:
		return fmt.Errorf("max escalations must not be negative, got %d", c.MaxEscalations)
	case c.HedgeAfter < 0:
		return fmt.Errorf("hedge threshold must not be negative, got %d", c.HedgeAfter)
	case c.HedgeAfter > 0 && c.HedgeFactor.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("hedge factor must be >= 1, got %s", c.HedgeFactor)
	}
	return nil
}

// MaxStake returns the stake ceiling
func (c Config) MaxStake() decimal.Decimal {
	return c.BaseStake.Mul(c.MaxMultiple)
}

// State is the risk state owned by one controller
type State struct {
	mu sync.RWMutex

	cfg     Config
	breaker *CircuitBreaker

	stake             decimal.Decimal
	consecutiveLosses int
	cumulative        decimal.Decimal
	wins              int
	losses            int
}

// Snapshot is a read-only view of the risk state
type Snapshot struct {
	Stake             decimal.Decimal
	ConsecutiveLosses int
	Cumulative        decimal.Decimal
	Wins              int
	Losses            int
	Halted            bool // Session loss limit reached
	Hedging           bool
}

// NewState creates a risk state at the base stake
func NewState(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("base_stake", cfg.BaseStake.StringFixed(2)).
		Str("max_stake", cfg.MaxStake().StringFixed(2)).
		Str("factor", cfg.Factor.String()).
		Int("max_escalations", cfg.MaxEscalations).
		Int("hedge_after", cfg.HedgeAfter).
		Msg("🛡️ Risk state initialized")

	return &State{
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.MaxSessionLoss),
		stake:   cfg.BaseStake,
	}, nil
}

// Stake returns the stake for the next contract
func (s *State) Stake() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quoted()
}

func (s *State) hedging() bool {
	return s.cfg.HedgeAfter > 0 && s.consecutiveLosses >= s.cfg.HedgeAfter
}

// quoted applies the hedge multiplier to the ladder stake
func (s *State) quoted() decimal.Decimal {
	if !s.hedging() {
		return s.stake
	}
	return decimal.Min(s.stake.Mul(s.cfg.HedgeFactor).Round(2), s.cfg.MaxStake())
}

// Seed starts the ladder from a loss streak recorded elsewhere, such as the
// venue's profit table. Counters and P&L are left alone.
func (s *State) Seed(consecutiveLosses int) {
	if consecutiveLosses < 0 {
		consecutiveLosses = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stake := s.cfg.BaseStake
	for i := 0; i < consecutiveLosses; i++ {
		stake = stake.Mul(s.cfg.Factor).Round(2)
		if stake.GreaterThanOrEqual(s.cfg.MaxStake()) {
			stake = s.cfg.MaxStake()
			break
		}
	}
	if stake.LessThan(s.cfg.MinStake) {
		stake = s.cfg.MinStake
	}
	s.stake = stake
	s.consecutiveLosses = consecutiveLosses

	log.Info().
		Int("consecutive_losses", consecutiveLosses).
		Str("stake", s.quoted().StringFixed(2)).
		Bool("hedge", s.hedging()).
		Msg("🔁 Loss streak synced")
}

// Snapshot returns the current values
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Stake:             s.quoted(),
		ConsecutiveLosses: s.consecutiveLosses,
		Cumulative:        s.cumulative,
		Wins:              s.wins,
		Losses:            s.losses,
		Halted:            s.breaker.IsTripped(),
		Hedging:           s.hedging(),
	}
}

// RecordSettlement applies one settled contract. A non-nil error means the
// controller must stop; the stake is left where it was.
func (s *State) RecordSettlement(profit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cumulative = s.cumulative.Add(profit)

	if profit.IsPositive() {
		s.wins++
		s.consecutiveLosses = 0
		s.stake = s.cfg.BaseStake
		s.breaker.RecordWin(profit)

		log.Info().
			Str("profit", profit.StringFixed(2)).
			Str("stake", s.stake.StringFixed(2)).
			Str("session_pnl", s.cumulative.StringFixed(2)).
			Msg("✅ Win, stake reset")
		return nil
	}

	s.losses++
	s.consecutiveLosses++
	s.breaker.RecordLoss(profit)

	next := s.stake.Mul(s.cfg.Factor).Round(2)
	if next.LessThan(s.cfg.MinStake) {
		next = s.cfg.MinStake
	}

	if next.GreaterThan(s.cfg.MaxStake()) {
		log.Warn().
			Str("stake", s.stake.StringFixed(2)).
			Str("next", next.StringFixed(2)).
			Str("max", s.cfg.MaxStake().StringFixed(2)).
			Msg("🛑 Next stake would pass the cap")
		return fmt.Errorf("%w: next stake %s > %s", ErrStakeCapExceeded, next.StringFixed(2), s.cfg.MaxStake().StringFixed(2))
	}
	if s.cfg.MaxEscalations > 0 && s.consecutiveLosses > s.cfg.MaxEscalations {
		log.Warn().
			Int("consecutive_losses", s.consecutiveLosses).
			Int("max_escalations", s.cfg.MaxEscalations).
			Msg("🛑 Escalation budget spent")
		return fmt.Errorf("%w: %d consecutive losses", ErrStakeCapExceeded, s.consecutiveLosses)
	}

	s.stake = next
	log.Info().
		Str("profit", profit.StringFixed(2)).
		Str("stake", s.quoted().StringFixed(2)).
		Int("consecutive_losses", s.consecutiveLosses).
		Bool("hedge", s.hedging()).
		Msg("📉 Loss, stake escalated")

	if _, pnl, tripped, reason := s.breaker.GetStats(); tripped {
		return fmt.Errorf("%w: %s, session pnl %s", ErrSessionLossLimit, reason, pnl.StringFixed(2))
	}
	return nil
}
