package signal

import (
	"math"

	"crypto-trading-assistant/internal/types"
)

// TechnicalScore maps a snapshot's indicators to a bullishness scalar in
// [0,1]. RSI anchors the score: without it the result is NaN and the
// aggregator treats the technical input as neutral.
func TechnicalScore(snap types.MarketSnapshot) float64 {
	ind := snap.Indicators
	rsi, ok := ind.Get(types.IndRSI)
	if !ok {
		return math.NaN()
	}

	parts := []float64{rsiScore(rsi)}

	if hist, ok := ind.Get(types.IndMACDHist); ok {
		parts = append(parts, macdScore(hist))
	} else if m, ok := ind.Get(types.IndMACD); ok {
		if s, ok := ind.Get(types.IndMACDSignal); ok {
			parts = append(parts, macdScore(m-s))
		}
	}

	if snap.Price > 0 {
		if sma20, ok := ind.Get(types.IndSMA20); ok {
			sma50, has50 := ind.Get(types.IndSMA50)
			parts = append(parts, trendScore(snap.Price, sma20, sma50, has50))
		}
	}

	if bb, ok := ind.Get(types.IndBBPosition); ok {
		parts = append(parts, clamp01(1-bb))
	}

	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return clamp01(sum / float64(len(parts)))
}

// oversold reads bullish, overbought bearish, linear in between
func rsiScore(rsi float64) float64 {
	switch {
	case rsi <= 30:
		return 0.8
	case rsi >= 70:
		return 0.2
	default:
		return 0.8 - (rsi-30)/40*0.6
	}
}

func macdScore(hist float64) float64 {
	if hist > 0 {
		return 0.65
	}
	return 0.35
}

func trendScore(price, sma20, sma50 float64, has50 bool) float64 {
	score := 0.5
	if price > sma20 {
		score += 0.15
	} else if price < sma20 {
		score -= 0.15
	}
	if has50 {
		if sma20 > sma50 {
			score += 0.15
		} else if sma20 < sma50 {
			score -= 0.15
		}
	}
	return score
}
