package ta

import "math"

// All functions return NaN when there is not enough data.

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// EMASeries returns the exponential moving average for every index from n-1
// onward, seeded with the SMA of the first n values.
func EMASeries(vals []float64, n int) []float64 {
	if len(vals) < n || n <= 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(vals)-n+1)
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += vals[i]
	}
	prev := seed / float64(n)
	out = append(out, prev)
	for i := n; i < len(vals); i++ {
		prev = vals[i]*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

func EMA(vals []float64, n int) float64 {
	s := EMASeries(vals, n)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// MACD returns the fast-slow EMA line, its signal EMA and the histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	nan := math.NaN()
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nan, nan, nan
	}
	fs := EMASeries(closes, fast)
	ss := EMASeries(closes, slow)
	// align: ss[i] corresponds to closes[slow-1+i], fs[j] to closes[fast-1+j]
	offset := slow - fast
	lines := make([]float64, len(ss))
	for i := range ss {
		lines[i] = fs[i+offset] - ss[i]
	}
	sigs := EMASeries(lines, signal)
	if len(sigs) == 0 {
		return nan, nan, nan
	}
	line = lines[len(lines)-1]
	sig = sigs[len(sigs)-1]
	return line, sig, line - sig
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// BBPosition places price inside the band: 0 at the lower band, 1 at the
// upper band, clamped to [0,1].
func BBPosition(price, up, low float64) float64 {
	if math.IsNaN(up) || math.IsNaN(low) || up <= low {
		return math.NaN()
	}
	p := (price - low) / (up - low)
	return math.Max(0, math.Min(1, p))
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(period)
}
