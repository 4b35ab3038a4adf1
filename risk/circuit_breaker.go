package risk

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER - session loss limit
// ═══════════════════════════════════════════════════════════════════════════════

type CircuitBreaker struct {
	mu sync.RWMutex

	// Configuration
	maxSessionLoss decimal.Decimal // Zero disables the limit

	// State
	consecutiveLosses int
	sessionPnL        decimal.Decimal
	tripped           bool
	reason            string
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxSessionLoss decimal.Decimal) *CircuitBreaker {
	return &CircuitBreaker{maxSessionLoss: maxSessionLoss.Abs()}
}

// RecordLoss records a losing settlement (profit <= 0)
func (cb *CircuitBreaker) RecordLoss(profit decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveLosses++
	cb.sessionPnL = cb.sessionPnL.Add(profit)

	if !cb.maxSessionLoss.IsZero() && cb.sessionPnL.Neg().GreaterThanOrEqual(cb.maxSessionLoss) {
		cb.trip("Max session loss")
	}
}

// RecordWin records a winning settlement
func (cb *CircuitBreaker) RecordWin(profit decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveLosses = 0
	cb.sessionPnL = cb.sessionPnL.Add(profit)
}

// trip activates the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	if cb.tripped {
		return
	}
	cb.tripped = true
	cb.reason = reason
	log.Warn().
		Str("reason", reason).
		Int("consecutive_losses", cb.consecutiveLosses).
		Str("session_pnl", cb.sessionPnL.StringFixed(2)).
		Str("limit", cb.maxSessionLoss.StringFixed(2)).
		Msg("🚨 CIRCUIT BREAKER TRIPPED")
}

// IsTripped returns current trip state
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripped
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() (consecutiveLosses int, sessionPnL decimal.Decimal, tripped bool, reason string) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveLosses, cb.sessionPnL, cb.tripped, cb.reason
}
