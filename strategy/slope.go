package strategy

import (
	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SLOPE STRATEGY - momentum score with regression trend
// ═══════════════════════════════════════════════════════════════════════════════
//
// Score over the short window:
//   momentum > 0                                  +1
//   short slope > 0.0002 and long slope > 0.0001  +2
//   rate of change > 0.02%                        +1.5
//   up/down ratio > 1.3                           +1
//
// Trend from the long slope. Up with score >= MinScore -> CALL,
// down or flat with score >= MinScore -> PUT.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SlopeParams configures Slope
type SlopeParams struct {
	Short         int     `yaml:"short"`
	Long          int     `yaml:"long"`
	MinVolatility float64 `yaml:"min_volatility"`
	UpSlope       float64 `yaml:"up_slope"`
	DownSlope     float64 `yaml:"down_slope"`
	MinScore      float64 `yaml:"min_score"`
	Duration      int     `yaml:"duration"`
	Unit          string  `yaml:"unit"`
}

// DefaultSlopeParams returns the stock parameters
func DefaultSlopeParams() SlopeParams {
	return SlopeParams{
		Short:         6,
		Long:          12,
		MinVolatility: 0.01,
		UpSlope:       0.0002,
		DownSlope:     -0.0001,
		MinScore:      3,
		Duration:      3,
		Unit:          "t",
	}
}

type Slope struct {
	p SlopeParams
}

// NewSlope creates a regression slope strategy
func NewSlope(p SlopeParams) *Slope {
	return &Slope{p: p}
}

func (s *Slope) Name() string { return "slope" }

// Evaluate scores the recent ticks
func (s *Slope) Evaluate(view feeds.View) Decision {
	prices := view.Prices()
	if len(prices) < s.p.Long || s.p.Short < 2 {
		return Hold("warming up: %d/%d ticks", len(prices), s.p.Long)
	}

	short := feeds.Tail(prices, s.p.Short)
	long := feeds.Tail(prices, s.p.Long)

	vol := feeds.StdDev(short)
	if vol < s.p.MinVolatility {
		return Hold("low volatility %.4f", vol)
	}

	momentum := feeds.Momentum(short[1:])
	slopeShort := feeds.Slope(short)
	slopeLong := feeds.Slope(long)
	roc := feeds.RateOfChange(short)
	ratio := feeds.UpDownRatio(short)

	trend := "flat"
	switch {
	case slopeLong > s.p.UpSlope:
		trend = "up"
	case slopeLong < s.p.DownSlope:
		trend = "down"
	}

	score := 0.0
	if momentum > 0 {
		score += 1
	}
	if slopeShort > 0.0002 && slopeLong > 0.0001 {
		score += 2
	}
	if roc > 0.02 {
		score += 1.5
	}
	if ratio > 1.3 {
		score += 1
	}

	if score < s.p.MinScore {
		return Hold("trend %s, score %.2f", trend, score)
	}

	dir := types.Fall
	if trend == "up" {
		dir = types.Rise
	}
	return NewEntry(dir).
		Duration(s.p.Duration, s.p.Unit).
		Reason("trend %s, score %.2f, volatility %.4f", trend, score, vol).
		Build()
}
