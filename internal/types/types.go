package types

import (
	"math"
	"time"
)

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Indicator keys used in MarketSnapshot.Indicators.
const (
	IndRSI        = "rsi"
	IndMACD       = "macd"
	IndMACDSignal = "macd_signal"
	IndMACDHist   = "macd_hist"
	IndSMA20      = "sma_20"
	IndSMA50      = "sma_50"
	IndEMA12      = "ema_12"
	IndEMA26      = "ema_26"
	IndBBPosition = "bb_position"
	IndATR        = "atr"
)

// Indicators holds computed values by key. An indicator that could not be
// computed is absent rather than NaN so the set stays JSON-encodable.
type Indicators map[string]float64

// Get returns the value for key and whether it is usable.
func (in Indicators) Get(key string) (float64, bool) {
	v, ok := in[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Set stores v unless it is NaN or infinite.
func (in Indicators) Set(key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	in[key] = v
}

type MarketSnapshot struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	High24h    float64    `json:"high_24h"`
	Low24h     float64    `json:"low_24h"`
	Volume24h  float64    `json:"volume_24h"`
	Indicators Indicators `json:"indicators"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Volatility is the 24h range relative to price, 0 when unknown.
func (s MarketSnapshot) Volatility() float64 {
	if s.Price <= 0 || s.High24h <= 0 || s.Low24h <= 0 || s.High24h < s.Low24h {
		return 0
	}
	return (s.High24h - s.Low24h) / s.Price
}

type Sentiment string

const (
	Bullish Sentiment = "bullish"
	Bearish Sentiment = "bearish"
	Neutral Sentiment = "neutral"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type SentimentResult struct {
	OverallSentiment Sentiment `json:"overall_sentiment"`
	SentimentScore   float64   `json:"sentiment_score"`
	Confidence       float64   `json:"confidence"`
	RiskAssessment   RiskLevel `json:"risk_assessment"`
	Reasoning        string    `json:"reasoning"`
}

// NeutralSentiment is the documented fallback for unusable sentiment responses.
func NeutralSentiment(reason string) SentimentResult {
	return SentimentResult{
		OverallSentiment: Neutral,
		SentimentScore:   0.5,
		Confidence:       0,
		RiskAssessment:   RiskMedium,
		Reasoning:        reason,
	}
}

type Action string

const (
	StrongBuy  Action = "STRONG_BUY"
	Buy        Action = "BUY"
	Hold       Action = "HOLD"
	Sell       Action = "SELL"
	StrongSell Action = "STRONG_SELL"
)

func (a Action) IsBuy() bool  { return a == Buy || a == StrongBuy }
func (a Action) IsSell() bool { return a == Sell || a == StrongSell }

type Signal struct {
	Action         Action   `json:"action"`
	Confidence     float64  `json:"confidence"`
	CombinedScore  float64  `json:"combined_score"`
	TechnicalScore float64  `json:"technical_score"`
	SentimentScore float64  `json:"sentiment_score"`
	NewsScore      float64  `json:"news_score"`
	Missing        []string `json:"missing,omitempty"`
	Reasoning      string   `json:"reasoning"`
}

type RiskDecision struct {
	Approved        bool      `json:"approved"`
	Reason          string    `json:"reason"`
	Check           string    `json:"check"`
	MaxPositionSize float64   `json:"max_position_size,omitempty"`
	StopLoss        float64   `json:"stop_loss,omitempty"`
	TakeProfit      float64   `json:"take_profit,omitempty"`
	RiskLevel       RiskLevel `json:"risk_level"`
	ClosesPosition  bool      `json:"closes_position,omitempty"`
	// CloseSize is the full open quantity a closing decision exits. It may
	// exceed MaxPositionSize when the limit was lowered after entry.
	CloseSize float64 `json:"close_size,omitempty"`
}

type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Size       float64   `json:"size"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Tag        string    `json:"tag"`
}

type OrderResult struct {
	Success   bool    `json:"success"`
	OrderID   string  `json:"order_id,omitempty"`
	FillPrice float64 `json:"fill_price,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type Outcome string

const (
	OutcomeHold           Outcome = "HOLD"
	OutcomeRejected       Outcome = "REJECTED"
	OutcomeOrderPlaced    Outcome = "ORDER_PLACED"
	OutcomePositionClosed Outcome = "POSITION_CLOSED"
	OutcomeFailed         Outcome = "FAILED"
)

// CycleResult is the explicit outcome of one analysis-and-decide cycle.
type CycleResult struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
	Outcome     Outcome          `json:"outcome"`
	ActionTaken Action           `json:"action_taken"`
	Reason      string           `json:"reason"`
	Price       float64          `json:"price,omitempty"`
	Signal      *Signal          `json:"signal,omitempty"`
	Sentiment   *SentimentResult `json:"sentiment,omitempty"`
	Decision    *RiskDecision    `json:"decision,omitempty"`
	Order       *OrderResult     `json:"order,omitempty"`
	Position    *Position        `json:"position,omitempty"`
	Closed      *ClosedPosition  `json:"closed,omitempty"`
	Triggers    []TriggerEvent   `json:"triggers,omitempty"`
}
