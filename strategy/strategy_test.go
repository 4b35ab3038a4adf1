package strategy

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/types"
)

var t0 = time.Unix(1_700_000_040, 0)

func viewOf(prices ...float64) feeds.View {
	samples := make([]feeds.Sample, len(prices))
	for i, p := range prices {
		samples[i] = feeds.Sample{Time: t0.Add(time.Duration(i) * time.Second), Price: p}
	}
	return feeds.View{Samples: samples, Candles: feeds.BuildCandles(samples, time.Minute)}
}

func candlesOf(shapes string) feeds.View {
	var candles []feeds.Candle
	price := 100.0
	for i, sh := range shapes {
		c := feeds.Candle{Start: t0.Add(time.Duration(i) * time.Minute), Open: price}
		switch sh {
		case 'G':
			price++
		case 'R':
			price--
		}
		c.Close = price
		c.High = math.Max(c.Open, c.Close)
		c.Low = math.Min(c.Open, c.Close)
		candles = append(candles, c)
	}
	return feeds.View{Candles: candles}
}

var spikeThenFade = []float64{100, 101, 102, 103, 103.5, 104, 104, 103.5, 103, 102.5, 102, 101.8, 101.6, 101.4, 101.2}

func TestTickDiffFadesSpike(t *testing.T) {
	s := NewTickDiff(DefaultTickDiffParams())

	d := s.Evaluate(viewOf(spikeThenFade...))
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Fall, d.Direction)
	assert.Equal(t, 15, d.Duration)
	assert.Equal(t, "s", d.Unit)

	mirrored := make([]float64, len(spikeThenFade))
	for i, p := range spikeThenFade {
		mirrored[i] = 200 - p
	}
	d = s.Evaluate(viewOf(mirrored...))
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Rise, d.Direction)
}

func TestTickDiffInvert(t *testing.T) {
	p := DefaultTickDiffParams()
	p.Invert = true

	d := NewTickDiff(p).Evaluate(viewOf(spikeThenFade...))
	require.True(t, d.Entering())
	assert.Equal(t, types.Rise, d.Direction)
}

func TestTickDiffHolds(t *testing.T) {
	s := NewTickDiff(DefaultTickDiffParams())

	assert.False(t, s.Evaluate(viewOf(100, 101)).Entering(), "warming up")

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	assert.False(t, s.Evaluate(viewOf(flat...)).Entering(), "quiet market")
}

func TestSlopeEntersOnUptrend(t *testing.T) {
	up := make([]float64, 12)
	down := make([]float64, 12)
	for i := range up {
		up[i] = 100 + 0.1*float64(i)
		down[i] = 100 - 0.1*float64(i)
	}

	s := NewSlope(DefaultSlopeParams())

	d := s.Evaluate(viewOf(up...))
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Rise, d.Direction)
	assert.Equal(t, 3, d.Duration)
	assert.Equal(t, "t", d.Unit)

	assert.False(t, s.Evaluate(viewOf(down...)).Entering())
}

func TestCandlePattern(t *testing.T) {
	fade := NewCandlePattern(DefaultCandlePatternParams())
	follow := NewCandlePattern(CandlePatternParams{Count: 3, Mode: "follow", Duration: 1, Unit: "m"})

	// Last candle is still forming and ignored
	view := candlesOf("RGGGR")

	d := fade.Evaluate(view)
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Fall, d.Direction)

	d = follow.Evaluate(view)
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Rise, d.Direction)

	assert.False(t, fade.Evaluate(candlesOf("GGRGG")).Entering())
	assert.False(t, fade.Evaluate(candlesOf("GG")).Entering())
}

func TestMarkovPredictsMostFrequentSuccessor(t *testing.T) {
	s := NewMarkov(MarkovParams{Order: 2, MinSupport: 1, Duration: 1, Unit: "m"})

	d := s.Evaluate(candlesOf("GGRGGRGGD"))
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Fall, d.Direction)

	d = s.Evaluate(candlesOf("RRGRRGRRD"))
	require.True(t, d.Entering(), d.Reason)
	assert.Equal(t, types.Rise, d.Direction)

	strict := NewMarkov(MarkovParams{Order: 2, MinSupport: 5})
	assert.False(t, strict.Evaluate(candlesOf("GGRGGRGGD")).Entering())
}

func TestStrategiesAreDeterministic(t *testing.T) {
	prices := make([]float64, 600)
	for i := range prices {
		x := float64(i)
		prices[i] = 100 + 2*math.Sin(x/7) + 0.7*math.Cos(x/3) + 0.01*x
	}
	view := viewOf(prices...)

	for _, typ := range Types() {
		s, err := Build(typ, nil)
		require.NoError(t, err)

		for n := 20; n <= len(prices); n += 37 {
			v := feeds.View{Samples: view.Samples[:n], Candles: feeds.BuildCandles(view.Samples[:n], time.Minute)}
			assert.Equal(t, s.Evaluate(v), s.Evaluate(v), "%s at %d ticks", typ, n)
		}
	}
}

func TestBuildOverlaysParams(t *testing.T) {
	s, err := Build("tick_diff", map[string]interface{}{"invert": true, "threshold": 0.5})
	require.NoError(t, err)

	td := s.(*TickDiff)
	assert.True(t, td.p.Invert)
	assert.Equal(t, 0.5, td.p.Threshold)
	assert.Equal(t, 15, td.p.Lookback)

	_, err = Build("nope", nil)
	assert.Error(t, err)

	_, err = Build("candle_pattern", map[string]interface{}{"mode": "sideways"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfgs, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfgs, len(Types()))

	s, err := Select(cfgs, "")
	require.NoError(t, err)
	assert.Equal(t, "tick_diff", s.Name())

	path := filepath.Join(dir, "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  - name: fast_slope
    type: slope
    is_active: true
    parameters:
      min_score: 4
`), 0o644))

	cfgs, err = LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)

	s, err = Select(cfgs, "fast_slope")
	require.NoError(t, err)
	assert.Equal(t, 4.0, s.(*Slope).p.MinScore)

	s, err = Select(cfgs, "markov")
	require.NoError(t, err)
	assert.Equal(t, "markov", s.Name())

	_, err = Select(cfgs, "unknown")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("strategies:\n  - name: x\n    type: bogus\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestShippedStrategiesEnterWithinSlotDeadline(t *testing.T) {
	const (
		historyTicks = 20              // HISTORY_COUNT default
		deadline     = 2 * time.Minute // SLOT_DEADLINE default
		window       = 300             // WINDOW_SIZE default
	)

	up := make([]float64, 12)
	for i := range up {
		up[i] = 100 + 0.1*float64(i)
	}

	// candle history as served at start-up, the last candle still forming
	cases := map[string]struct {
		shapes func(n int) string
		live   []float64
	}{
		"tick_diff":      {live: spikeThenFade},
		"slope":          {live: up},
		"candle_pattern": {shapes: func(n int) string { return strings.Repeat("G", n) }},
		"markov":         {shapes: func(n int) string { return strings.Repeat("GR", n)[:n] }},
	}

	for _, typ := range Types() {
		t.Run(typ, func(t *testing.T) {
			c, ok := cases[typ]
			require.True(t, ok, "no start-up case for %s", typ)

			s, err := Build(typ, nil)
			require.NoError(t, err)

			snap := feeds.NewSnapshot(window, time.Minute)
			now := t0
			if w, ok := s.(CandleWarmup); ok {
				require.NotNil(t, c.shapes)
				n := w.CandlesNeeded()
				candles := candlesOf(c.shapes(n)).Candles
				require.Len(t, candles, n)
				snap.PrimeCandles(candles)
				now = candles[n-1].Start
			}

			history := make([]feeds.Sample, historyTicks)
			for i := range history {
				history[i] = feeds.Sample{Time: now.Add(time.Duration(i+1) * time.Second), Price: 100}
			}
			snap.Prime(history)
			now = history[historyTicks-1].Time

			var d Decision
			for elapsed := time.Second; elapsed <= deadline; elapsed += time.Second {
				price := 100.0
				if i := int(elapsed/time.Second) - 1; i < len(c.live) {
					price = c.live[i]
				}
				require.NoError(t, snap.Push(feeds.Sample{Time: now.Add(elapsed), Price: price}))

				if d = s.Evaluate(snap.View()); d.Entering() {
					return
				}
			}
			t.Fatalf("%s never entered within %s: %s", typ, deadline, d.Reason)
		})
	}
}
