package feeds

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET SNAPSHOT - rolling window of ticks with candle aggregation
// ═══════════════════════════════════════════════════════════════════════════════

// ErrOutOfOrder is returned when a sample is older than the newest one held
var ErrOutOfOrder = errors.New("sample older than window head")

// Sample is one price observation
type Sample struct {
	Time  time.Time
	Price float64
}

// maxCandles bounds the candle series kept alongside the tick window
const maxCandles = 1000

// Snapshot holds the most recent samples, oldest first, and a candle series
// folded from every accepted sample. Candles outlive sample eviction.
type Snapshot struct {
	mu       sync.RWMutex
	capacity int
	bucket   time.Duration
	samples  []Sample
	candles  []Candle
	folded   time.Time // newest sample folded into candles
}

// NewSnapshot creates a snapshot keeping at most capacity samples and
// aggregating candles over bucket
func NewSnapshot(capacity int, bucket time.Duration) *Snapshot {
	if capacity <= 0 {
		capacity = 1
	}
	if bucket <= 0 {
		bucket = time.Minute
	}
	return &Snapshot{
		capacity: capacity,
		bucket:   bucket,
		samples:  make([]Sample, 0, capacity),
	}
}

// Bucket returns the candle width
func (s *Snapshot) Bucket() time.Duration {
	return s.bucket
}

// Len returns the number of samples held
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Push appends a sample, evicting the oldest on overflow.
// Equal timestamps are accepted; older ones are rejected.
func (s *Snapshot) Push(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.samples); n > 0 && sample.Time.Before(s.samples[n-1].Time) {
		return ErrOutOfOrder
	}

	if len(s.samples) == s.capacity {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:len(s.samples)-1]
	}
	s.samples = append(s.samples, sample)

	if !sample.Time.Before(s.folded) {
		s.fold(sample)
	}
	return nil
}

// Prime replaces the window with history, sorted and trimmed to capacity.
// Samples newer than the candle series are folded into it.
func (s *Snapshot) Prime(history []Sample) {
	sorted := make([]Sample, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range sorted {
		if len(s.candles) == 0 || sample.Time.After(s.folded) {
			s.fold(sample)
		}
	}

	if len(sorted) > s.capacity {
		sorted = sorted[len(sorted)-s.capacity:]
	}
	s.samples = append(s.samples[:0], sorted...)
}

// PrimeCandles replaces the candle series with venue history. Later ticks
// extend it from the newest history candle on.
func (s *Snapshot) PrimeCandles(history []Candle) {
	sorted := make([]Candle, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	if len(sorted) > maxCandles {
		sorted = sorted[len(sorted)-maxCandles:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = sorted
	s.folded = time.Time{}
	if n := len(sorted); n > 0 {
		s.folded = sorted[n-1].Start
	}
}

// CandleCount returns the number of candles held, the forming one included
func (s *Snapshot) CandleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

func (s *Snapshot) fold(sample Sample) {
	s.candles = foldCandle(s.candles, sample, s.bucket)
	if len(s.candles) > maxCandles {
		s.candles = append(s.candles[:0], s.candles[len(s.candles)-maxCandles:]...)
	}
	s.folded = sample.Time
}

// Latest returns the newest sample
func (s *Snapshot) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// View returns an immutable copy handed to strategies
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := make([]Sample, len(s.samples))
	copy(samples, s.samples)
	candles := make([]Candle, len(s.candles))
	copy(candles, s.candles)

	return View{Samples: samples, Candles: candles}
}

// View is a point-in-time copy of the snapshot. Callers must not mutate it.
type View struct {
	Samples []Sample
	Candles []Candle
}

// Prices returns the sample prices, oldest first
func (v View) Prices() []float64 {
	out := make([]float64, len(v.Samples))
	for i, s := range v.Samples {
		out[i] = s.Price
	}
	return out
}

// Last returns the newest price, or 0 for an empty view
func (v View) Last() float64 {
	if len(v.Samples) == 0 {
		return 0
	}
	return v.Samples[len(v.Samples)-1].Price
}
