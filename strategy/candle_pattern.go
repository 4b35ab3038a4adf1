package strategy

import (
	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

// CandlePatternParams configures CandlePattern
type CandlePatternParams struct {
	Count    int    `yaml:"count"` // Same-colour completed candles required
	Mode     string `yaml:"mode"`  // follow or fade
	Duration int    `yaml:"duration"`
	Unit     string `yaml:"unit"`
}

// DefaultCandlePatternParams returns the stock parameters
func DefaultCandlePatternParams() CandlePatternParams {
	return CandlePatternParams{Count: 3, Mode: "fade", Duration: 1, Unit: "m"}
}

// CandlePattern trades a run of same-coloured completed candles, either
// with the run or against it
type CandlePattern struct {
	p CandlePatternParams
}

// NewCandlePattern creates a candle run strategy
func NewCandlePattern(p CandlePatternParams) *CandlePattern {
	return &CandlePattern{p: p}
}

func (s *CandlePattern) Name() string { return "candle_pattern" }

// CandlesNeeded is the run length plus the forming candle
func (s *CandlePattern) CandlesNeeded() int {
	return s.p.Count + 1
}

// Evaluate looks at completed candles only; the newest candle is still forming
func (s *CandlePattern) Evaluate(view feeds.View) Decision {
	if s.p.Count < 1 || len(view.Candles) < s.p.Count+1 {
		return Hold("warming up: %d candles", len(view.Candles))
	}

	done := view.Candles[:len(view.Candles)-1]
	run := done[len(done)-s.p.Count:]

	shape := run[0].Shape()
	if shape == feeds.ShapeDoji {
		return Hold("doji in run")
	}
	for _, c := range run[1:] {
		if c.Shape() != shape {
			return Hold("no %d-candle run", s.p.Count)
		}
	}

	dir := types.Rise
	if shape == feeds.ShapeRed {
		dir = types.Fall
	}
	if s.p.Mode == "fade" {
		dir = dir.Opposite()
	}
	return NewEntry(dir).
		Duration(s.p.Duration, s.p.Unit).
		Reason("%d %c candles, %s", s.p.Count, shape, s.p.Mode).
		Build()
}
