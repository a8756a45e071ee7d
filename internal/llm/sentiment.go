// Package llm turns chat-model output into a validated SentimentResult.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

const DefaultSystemPrompt = `You are a crypto market sentiment analyst. You will receive market state as JSON.
Respond ONLY with one compact JSON object and no prose, matching exactly:
{"overall_sentiment":"bullish|bearish|neutral","sentiment_score":<0..1, 1 is most bullish>,"confidence":<0..1>,"risk_assessment":"low|medium|high","reasoning":"<one sentence>"}`

// ChatSource asks a chat model for a sentiment read. Transport failures are
// returned as ErrCollaboratorUnavailable; unusable output becomes a neutral
// result logged at warn level.
type ChatSource struct {
	name   string
	model  model.BaseChatModel
	system string
}

var _ interfaces.SentimentSource = (*ChatSource)(nil)

func NewChatSource(name string, m model.BaseChatModel, system string) *ChatSource {
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	return &ChatSource{name: name, model: m, system: system}
}

func (s *ChatSource) Name() string { return s.name }

func (s *ChatSource) Sentiment(ctx context.Context, symbol string, snap types.MarketSnapshot) (types.SentimentResult, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(s.system),
		schema.UserMessage(BuildPrompt(symbol, snap)),
	}

	out, err := s.model.Generate(ctx, msgs)
	if err != nil {
		return types.SentimentResult{}, errors.Wrapf(types.ErrCollaboratorUnavailable, "%s generate: %v", s.name, err)
	}
	if out == nil {
		return types.SentimentResult{}, errors.Wrapf(types.ErrCollaboratorUnavailable, "%s returned no message", s.name)
	}

	res, err := ParseSentiment(out.Content)
	if err != nil {
		logger.Warn(ctx, "Malformed sentiment response, using neutral", "provider", s.name, "symbol", symbol, "error", err)
		return types.NeutralSentiment(fmt.Sprintf("%s response rejected: %v", s.name, err)), nil
	}
	return res, nil
}

// BuildPrompt renders the market state the model sees. Keys are sorted so the
// prompt is stable for a given snapshot.
func BuildPrompt(symbol string, snap types.MarketSnapshot) string {
	keys := make([]string, 0, len(snap.Indicators))
	for k := range snap.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	inds := make(map[string]float64, len(keys))
	for _, k := range keys {
		if v, ok := snap.Indicators.Get(k); ok {
			inds[k] = v
		}
	}

	state := map[string]any{
		"symbol":      symbol,
		"price":       snap.Price,
		"high_24h":    snap.High24h,
		"low_24h":     snap.Low24h,
		"volume_24h":  snap.Volume24h,
		"volatility":  snap.Volatility(),
		"indicators":  inds,
		"observed_at": snap.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	b, _ := json.Marshal(state)
	return "State:" + string(b)
}

type wireSentiment struct {
	OverallSentiment *string  `json:"overall_sentiment"`
	SentimentScore   *float64 `json:"sentiment_score"`
	Confidence       *float64 `json:"confidence"`
	RiskAssessment   *string  `json:"risk_assessment"`
	Reasoning        string   `json:"reasoning"`
}

// ParseSentiment validates a model reply against the sentiment schema. The
// reply must be a single JSON object; a code fence around it is tolerated but
// prose is not. Missing fields, unknown enum values and out-of-range numbers
// are rejected.
func ParseSentiment(content string) (types.SentimentResult, error) {
	raw := jsonBody(content)
	if raw == "" {
		return types.SentimentResult{}, errors.Wrap(types.ErrMalformedSentiment, "response is not a single JSON object")
	}

	var w wireSentiment
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return types.SentimentResult{}, errors.Wrapf(types.ErrMalformedSentiment, "decode: %v", err)
	}

	if w.OverallSentiment == nil || w.SentimentScore == nil || w.Confidence == nil || w.RiskAssessment == nil {
		return types.SentimentResult{}, errors.Wrap(types.ErrMalformedSentiment, "missing required field")
	}

	sent := types.Sentiment(strings.ToLower(strings.TrimSpace(*w.OverallSentiment)))
	switch sent {
	case types.Bullish, types.Bearish, types.Neutral:
	default:
		return types.SentimentResult{}, errors.Wrapf(types.ErrMalformedSentiment, "overall_sentiment %q", *w.OverallSentiment)
	}

	risk := types.RiskLevel(strings.ToLower(strings.TrimSpace(*w.RiskAssessment)))
	switch risk {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
	default:
		return types.SentimentResult{}, errors.Wrapf(types.ErrMalformedSentiment, "risk_assessment %q", *w.RiskAssessment)
	}

	if !unit(*w.SentimentScore) {
		return types.SentimentResult{}, errors.Wrapf(types.ErrMalformedSentiment, "sentiment_score %v outside [0,1]", *w.SentimentScore)
	}
	if !unit(*w.Confidence) {
		return types.SentimentResult{}, errors.Wrapf(types.ErrMalformedSentiment, "confidence %v outside [0,1]", *w.Confidence)
	}

	return types.SentimentResult{
		OverallSentiment: sent,
		SentimentScore:   *w.SentimentScore,
		Confidence:       *w.Confidence,
		RiskAssessment:   risk,
		Reasoning:        strings.TrimSpace(w.Reasoning),
	}, nil
}

func unit(x float64) bool {
	return !math.IsNaN(x) && x >= 0 && x <= 1
}

// jsonBody returns the reply when it is exactly one JSON object, optionally
// inside a single markdown code fence. Any other surrounding text yields "".
func jsonBody(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return ""
		}
		body, ok := strings.CutSuffix(strings.TrimSpace(rest[nl+1:]), "```")
		if !ok {
			return ""
		}
		s = strings.TrimSpace(body)
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return ""
	}
	return s
}
