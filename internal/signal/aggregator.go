package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/types"
)

const weightTolerance = 1e-6

// Weights are the (technical, sentiment, news) contributions to the combined score.
type Weights struct {
	Technical float64 `yaml:"technical" toml:"technical" json:"technical"`
	Sentiment float64 `yaml:"sentiment" toml:"sentiment" json:"sentiment"`
	News      float64 `yaml:"news" toml:"news" json:"news"`
}

func (w Weights) Sum() float64 { return w.Technical + w.Sentiment + w.News }

type Config struct {
	Weights        Weights
	BuyThreshold   float64 // combined > this is BUY
	StrongBuy      float64 // combined > this is STRONG_BUY
	SellThreshold  float64 // combined < this is SELL
	StrongSell     float64 // combined < this is STRONG_SELL
	MissingPenalty float64 // confidence multiplier loss per missing input
}

func DefaultConfig() Config {
	return Config{
		Weights:        Weights{Technical: 0.4, Sentiment: 0.3, News: 0.3},
		BuyThreshold:   0.7,
		StrongBuy:      0.85,
		SellThreshold:  0.3,
		StrongSell:     0.15,
		MissingPenalty: 0.2,
	}
}

func (c Config) Validate() error {
	w := c.Weights
	if w.Technical < 0 || w.Sentiment < 0 || w.News < 0 {
		return errors.Wrapf(types.ErrConfiguration, "negative signal weight (%.4f, %.4f, %.4f)", w.Technical, w.Sentiment, w.News)
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return errors.Wrapf(types.ErrConfiguration, "signal weights sum to %.6f, want 1.0", w.Sum())
	}
	if !(0 <= c.StrongSell && c.StrongSell <= c.SellThreshold && c.SellThreshold < c.BuyThreshold &&
		c.BuyThreshold <= c.StrongBuy && c.StrongBuy <= 1) {
		return errors.Wrapf(types.ErrConfiguration,
			"signal thresholds out of order: strong_sell=%.2f sell=%.2f buy=%.2f strong_buy=%.2f",
			c.StrongSell, c.SellThreshold, c.BuyThreshold, c.StrongBuy)
	}
	if c.MissingPenalty < 0 || c.MissingPenalty > 1 {
		return errors.Wrapf(types.ErrConfiguration, "missing_penalty must be in [0,1], got %.2f", c.MissingPenalty)
	}
	return nil
}

// Aggregator combines sub-scores into a Signal. It holds no mutable state.
type Aggregator struct {
	cfg Config
}

// NewAggregator rejects weights that do not sum to 1; they are never rescaled.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg}, nil
}

func (a *Aggregator) Config() Config { return a.cfg }

// Aggregate is a pure function of its inputs. NaN sub-scores count as neutral
// and cost confidence.
func (a *Aggregator) Aggregate(technical, sentiment, news float64) types.Signal {
	var missing []string
	technical = neutralize("technical", technical, &missing)
	sentiment = neutralize("sentiment", sentiment, &missing)
	news = neutralize("news", news, &missing)

	w := a.cfg.Weights
	combined := clamp01(technical*w.Technical + sentiment*w.Sentiment + news*w.News)

	action := a.action(combined)
	d := math.Abs(combined-0.5) / 0.5
	var confidence float64
	if action == types.Hold {
		confidence = 0.5 * (1 - d)
	} else {
		confidence = 0.5 + d/2
	}
	for range missing {
		confidence *= 1 - a.cfg.MissingPenalty
	}
	confidence = clamp01(confidence)

	return types.Signal{
		Action:         action,
		Confidence:     confidence,
		CombinedScore:  combined,
		TechnicalScore: technical,
		SentimentScore: sentiment,
		NewsScore:      news,
		Missing:        missing,
		Reasoning:      reasoning(action, combined, technical, sentiment, news, missing),
	}
}

func (a *Aggregator) action(combined float64) types.Action {
	switch {
	case combined > a.cfg.StrongBuy:
		return types.StrongBuy
	case combined > a.cfg.BuyThreshold:
		return types.Buy
	case combined < a.cfg.StrongSell:
		return types.StrongSell
	case combined < a.cfg.SellThreshold:
		return types.Sell
	default:
		return types.Hold
	}
}

func neutralize(name string, v float64, missing *[]string) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*missing = append(*missing, name)
		return 0.5
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func reasoning(action types.Action, combined, tech, sent, news float64, missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: combined=%.3f (technical=%.3f sentiment=%.3f news=%.3f)", action, combined, tech, sent, news)
	if len(missing) > 0 {
		fmt.Fprintf(&b, "; neutralized: %s", strings.Join(missing, ","))
	}
	return b.String()
}
