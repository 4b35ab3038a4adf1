package strategy

import (
	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKOV STRATEGY - candle shape sequences
// ═══════════════════════════════════════════════════════════════════════════════
//
// Counts which shape followed every Order-long run of shapes in the completed
// candles, then predicts the most frequent successor of the latest run.
// Ties resolve G, R, D in that order. A doji prediction is no trade.
//
// ═══════════════════════════════════════════════════════════════════════════════

// MarkovParams configures Markov
type MarkovParams struct {
	Order      int    `yaml:"order"`
	MinSupport int    `yaml:"min_support"` // Observations of the latest run required
	History    int    `yaml:"history"`     // Candles primed from the venue to train on
	Duration   int    `yaml:"duration"`
	Unit       string `yaml:"unit"`
}

// DefaultMarkovParams returns the stock parameters
func DefaultMarkovParams() MarkovParams {
	return MarkovParams{Order: 5, MinSupport: 1, History: 120, Duration: 1, Unit: "m"}
}

type Markov struct {
	p MarkovParams
}

// NewMarkov creates a shape sequence strategy
func NewMarkov(p MarkovParams) *Markov {
	return &Markov{p: p}
}

func (s *Markov) Name() string { return "markov" }

// CandlesNeeded covers the training history plus the forming candle
func (s *Markov) CandlesNeeded() int {
	return max(s.p.History, s.p.Order+2)
}

var shapeOrder = [...]feeds.Shape{feeds.ShapeGreen, feeds.ShapeRed, feeds.ShapeDoji}

// Evaluate trains on the view and predicts the next candle
func (s *Markov) Evaluate(view feeds.View) Decision {
	k := s.p.Order
	if k < 1 || len(view.Candles) < k+2 {
		return Hold("warming up: %d candles", len(view.Candles))
	}

	done := view.Candles[:len(view.Candles)-1]
	shapes := make([]byte, len(done))
	for i, c := range done {
		shapes[i] = byte(c.Shape())
	}

	counts := map[string]map[feeds.Shape]int{}
	for i := 0; i+k < len(shapes); i++ {
		seq := string(shapes[i : i+k])
		if counts[seq] == nil {
			counts[seq] = map[feeds.Shape]int{}
		}
		counts[seq][feeds.Shape(shapes[i+k])]++
	}

	last := string(shapes[len(shapes)-k:])
	next, ok := counts[last]
	if !ok {
		return Hold("unseen sequence %s", last)
	}

	best, bestN, total := feeds.ShapeDoji, -1, 0
	for _, sh := range shapeOrder {
		total += next[sh]
		if next[sh] > bestN {
			best, bestN = sh, next[sh]
		}
	}
	if total < s.p.MinSupport {
		return Hold("sequence %s seen %d times", last, total)
	}

	var dir types.Direction
	switch best {
	case feeds.ShapeGreen:
		dir = types.Rise
	case feeds.ShapeRed:
		dir = types.Fall
	default:
		return Hold("sequence %s predicts doji", last)
	}
	return NewEntry(dir).
		Duration(s.p.Duration, s.p.Unit).
		Reason("sequence %s -> %c (%d/%d)", last, best, bestN, total).
		Build()
}
