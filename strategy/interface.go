package strategy

import (
	"fmt"

	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY INTERFACE - Plug-in pattern for strategies
// ═══════════════════════════════════════════════════════════════════════════════
//
// All strategies implement this interface:
//   Evaluate(View) Decision
//
// The controller calls Evaluate once per new tick while idle. Strategies keep
// no state between calls and perform no I/O: the same View always yields the
// same Decision.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Strategy is the interface all trading strategies must implement
type Strategy interface {
	// Name returns the strategy identifier
	Name() string

	// Evaluate inspects an immutable market view
	Evaluate(view feeds.View) Decision
}

// CandleWarmup is implemented by strategies that read candles. The
// controller primes that many candles from venue history before trading.
type CandleWarmup interface {
	CandlesNeeded() int
}

// Action is what the strategy wants the controller to do
type Action int

const (
	NoAction Action = iota
	Enter
)

// Decision is a strategy verdict
type Decision struct {
	Action    Action
	Direction types.Direction
	Duration  int    // Contract duration
	Unit      string // t (ticks), s, m
	Reason    string // Human-readable reason
}

// Hold returns a no-trade decision
func Hold(format string, args ...any) Decision {
	return Decision{Action: NoAction, Reason: fmt.Sprintf(format, args...)}
}

// Entering reports whether the decision opens a contract
func (d Decision) Entering() bool {
	return d.Action == Enter
}

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION BUILDER - Helper for creating entries
// ═══════════════════════════════════════════════════════════════════════════════

// DecisionBuilder helps construct entry decisions
type DecisionBuilder struct {
	d Decision
}

// NewEntry creates a builder for an entry in direction dir
func NewEntry(dir types.Direction) *DecisionBuilder {
	return &DecisionBuilder{d: Decision{Action: Enter, Direction: dir, Duration: 5, Unit: "t"}}
}

// Duration sets the contract duration
func (b *DecisionBuilder) Duration(n int, unit string) *DecisionBuilder {
	if n > 0 {
		b.d.Duration = n
	}
	if unit != "" {
		b.d.Unit = unit
	}
	return b
}

// Reason sets the decision reason
func (b *DecisionBuilder) Reason(format string, args ...any) *DecisionBuilder {
	b.d.Reason = fmt.Sprintf(format, args...)
	return b
}

// Build returns the completed decision
func (b *DecisionBuilder) Build() Decision {
	return b.d
}
