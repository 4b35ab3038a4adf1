package feeds

import "math"

// ═══════════════════════════════════════════════════════════════════════════════
// INDICATORS - pure helpers over price series, oldest first
// ═══════════════════════════════════════════════════════════════════════════════

// SMA returns the simple average of the last n prices; ok is false when
// fewer than n prices exist
func SMA(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[len(prices)-n:] {
		sum += p
	}
	return sum / float64(n), true
}

// Range returns max - min of the series
func Range(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return hi - lo
}

// StdDev returns the population standard deviation
func StdDev(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))

	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(prices)))
}

// Slope returns the least-squares slope of price against tick index
func Slope(prices []float64) float64 {
	n := float64(len(prices))
	var sumX, sumY, sumXY, sumX2 float64
	for i, p := range prices {
		x := float64(i)
		sumX += x
		sumY += p
		sumXY += x * p
		sumX2 += x * x
	}
	den := n*sumX2 - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// Momentum counts up-ticks minus down-ticks
func Momentum(prices []float64) int {
	score := 0
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			score++
		case prices[i] < prices[i-1]:
			score--
		}
	}
	return score
}

// RateOfChange returns the percent change from first to last price
func RateOfChange(prices []float64) float64 {
	if len(prices) == 0 || prices[0] == 0 {
		return 0
	}
	first, last := prices[0], prices[len(prices)-1]
	return (last - first) / first * 100
}

// UpDownRatio returns ups / (downs + 1)
func UpDownRatio(prices []float64) float64 {
	ups, downs := 0, 0
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			ups++
		case prices[i] < prices[i-1]:
			downs++
		}
	}
	return float64(ups) / float64(downs+1)
}

// Tail returns the last n prices, or all of them if fewer exist
func Tail(prices []float64, n int) []float64 {
	if n >= len(prices) {
		return prices
	}
	if n <= 0 {
		return nil
	}
	return prices[len(prices)-n:]
}
