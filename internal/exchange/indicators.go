package exchange

import (
	"crypto-trading-assistant/internal/ta"
	"crypto-trading-assistant/internal/types"
)

type IndicatorParams struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBWindow   int
	BBStdDev   float64
	ATRPeriod  int
}

func DefaultIndicatorParams() IndicatorParams {
	return IndicatorParams{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBWindow:   20,
		BBStdDev:   2,
		ATRPeriod:  14,
	}
}

// ComputeIndicators derives the snapshot indicator set from candles. Values
// that need more history than is available are left out.
func ComputeIndicators(cs []types.Candle, p IndicatorParams) types.Indicators {
	cl := make([]float64, len(cs))
	h := make([]float64, len(cs))
	l := make([]float64, len(cs))
	for i, c := range cs {
		cl[i] = c.Close
		h[i] = c.High
		l[i] = c.Low
	}

	inds := types.Indicators{}
	if len(cl) == 0 {
		return inds
	}
	price := cl[len(cl)-1]

	inds.Set(types.IndRSI, ta.RSI(cl, p.RSIPeriod))

	line, sig, hist := ta.MACD(cl, p.MACDFast, p.MACDSlow, p.MACDSignal)
	inds.Set(types.IndMACD, line)
	inds.Set(types.IndMACDSignal, sig)
	inds.Set(types.IndMACDHist, hist)

	inds.Set(types.IndSMA20, ta.SMA(cl, 20))
	inds.Set(types.IndSMA50, ta.SMA(cl, 50))
	inds.Set(types.IndEMA12, ta.EMA(cl, 12))
	inds.Set(types.IndEMA26, ta.EMA(cl, 26))

	_, up, low := ta.Bollinger(cl, p.BBWindow, p.BBStdDev)
	inds.Set(types.IndBBPosition, ta.BBPosition(price, up, low))

	inds.Set(types.IndATR, ta.ATR(h, l, cl, p.ATRPeriod))
	return inds
}
