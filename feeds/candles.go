package feeds

import "time"

// Candle is an OHLC bar over one bucket
type Candle struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ticks int
}

// Shape classifies a candle as bullish, bearish or doji
type Shape byte

const (
	ShapeGreen Shape = 'G'
	ShapeRed   Shape = 'R'
	ShapeDoji  Shape = 'D'
)

// Shape returns the candle's colour
func (c Candle) Shape() Shape {
	switch {
	case c.Close > c.Open:
		return ShapeGreen
	case c.Close < c.Open:
		return ShapeRed
	}
	return ShapeDoji
}

// BuildCandles aggregates time-ordered samples into bucket-aligned candles.
// A new candle opens at the previous candle's close; high and low track
// only the ticks inside the bucket.
func BuildCandles(samples []Sample, bucket time.Duration) []Candle {
	if len(samples) == 0 || bucket <= 0 {
		return nil
	}

	candles := make([]Candle, 0, len(samples)/2+1)
	for _, s := range samples {
		candles = foldCandle(candles, s, bucket)
	}
	return candles
}

// foldCandle adds one sample to the series. Samples that fall before the
// newest candle's bucket are ignored.
func foldCandle(candles []Candle, s Sample, bucket time.Duration) []Candle {
	start := s.Time.Truncate(bucket)

	if n := len(candles); n > 0 {
		last := &candles[n-1]
		switch {
		case start.Before(last.Start):
			return candles
		case start.Equal(last.Start):
			if s.Price > last.High {
				last.High = s.Price
			}
			if s.Price < last.Low {
				last.Low = s.Price
			}
			last.Close = s.Price
			last.Ticks++
			return candles
		}
	}

	open := s.Price
	if n := len(candles); n > 0 {
		open = candles[n-1].Close
	}
	return append(candles, Candle{
		Start: start,
		Open:  open,
		High:  s.Price,
		Low:   s.Price,
		Close: s.Price,
		Ticks: 1,
	})
}
