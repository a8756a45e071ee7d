package deepseek

import (
	"context"
	"os"

	einodeepseek "github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/llm"
	"crypto-trading-assistant/internal/types"
)

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	System    string
}

// New builds a sentiment source on the DeepSeek chat API. The API key falls
// back to DEEPSEEK_API_KEY.
func New(ctx context.Context, cfg Config) (*llm.ChatSource, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.Wrap(types.ErrConfiguration, "DEEPSEEK_API_KEY missing")
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	cm, err := einodeepseek.NewChatModel(ctx, &einodeepseek.ChatModelConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create deepseek chat model")
	}
	return llm.NewChatSource("deepseek", cm, cfg.System), nil
}
