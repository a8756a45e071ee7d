package openai

import (
	"context"
	"os"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/llm"
	"crypto-trading-assistant/internal/types"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	System      string
}

// New builds a sentiment source on any OpenAI-compatible chat endpoint. The
// API key falls back to OPENAI_API_KEY.
func New(ctx context.Context, cfg Config) (*llm.ChatSource, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.Wrap(types.ErrConfiguration, "OPENAI_API_KEY missing")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	mc := &einoopenai.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}
	// replies are parsed strictly as one JSON object
	mc.ResponseFormat = &einoopenai.ChatCompletionResponseFormat{
		Type: einoopenai.ChatCompletionResponseFormatTypeJSONObject,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		mc.Temperature = &temp
	}

	cm, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, errors.Wrap(err, "create openai chat model")
	}
	return llm.NewChatSource("openai", cm, cfg.System), nil
}
