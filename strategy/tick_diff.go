package strategy

import (
	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TICK DIFF STRATEGY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Entry: price moved at least Threshold over the last Lookback ticks
// Confirm: short SMA against long SMA points the opposite way (reversion)
// Filter: range of the last SMALong ticks >= MinRange
//
//   diff >= +Threshold and trend down -> PUT
//   diff <= -Threshold and trend up   -> CALL
//
// Invert swaps the two outcomes.
//
// ═══════════════════════════════════════════════════════════════════════════════

// TickDiffParams configures TickDiff
type TickDiffParams struct {
	Lookback  int     `yaml:"lookback"`
	Threshold float64 `yaml:"threshold"`
	SMAShort  int     `yaml:"sma_short"`
	SMALong   int     `yaml:"sma_long"`
	MinRange  float64 `yaml:"min_range"`
	Invert    bool    `yaml:"invert"`
	Duration  int     `yaml:"duration"`
	Unit      string  `yaml:"unit"`
}

// DefaultTickDiffParams returns the stock parameters
func DefaultTickDiffParams() TickDiffParams {
	return TickDiffParams{
		Lookback:  15,
		Threshold: 1.0,
		SMAShort:  5,
		SMALong:   15,
		MinRange:  0.3,
		Duration:  15,
		Unit:      "s",
	}
}

type TickDiff struct {
	p TickDiffParams
}

// NewTickDiff creates a tick difference strategy
func NewTickDiff(p TickDiffParams) *TickDiff {
	return &TickDiff{p: p}
}

func (s *TickDiff) Name() string { return "tick_diff" }

// Evaluate applies the difference rule to the latest tick
func (s *TickDiff) Evaluate(view feeds.View) Decision {
	prices := view.Prices()
	need := max(s.p.Lookback, s.p.SMALong)
	if len(prices) < need || s.p.Lookback < 1 {
		return Hold("warming up: %d/%d ticks", len(prices), need)
	}

	price := prices[len(prices)-1]
	past := prices[len(prices)-s.p.Lookback]
	diff := price - past

	if rng := feeds.Range(feeds.Tail(prices, s.p.SMALong)); rng < s.p.MinRange {
		return Hold("market too quiet: range %.5f < %.5f", rng, s.p.MinRange)
	}

	short, okS := feeds.SMA(prices, s.p.SMAShort)
	long, okL := feeds.SMA(prices, s.p.SMALong)
	if !okS || !okL {
		return Hold("not enough ticks for SMA")
	}
	trendUp := short > long
	trendDown := short < long

	var dir types.Direction
	switch {
	case diff >= s.p.Threshold && trendDown:
		dir = types.Fall
	case diff <= -s.p.Threshold && trendUp:
		dir = types.Rise
	default:
		return Hold("diff %.3f not confirmed (sma %.5f/%.5f)", diff, short, long)
	}

	if s.p.Invert {
		dir = dir.Opposite()
	}
	return NewEntry(dir).
		Duration(s.p.Duration, s.p.Unit).
		Reason("diff %.3f over %d ticks, sma %.5f/%.5f", diff, s.p.Lookback, short, long).
		Build()
}
