package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"diagbot/pkg"
)

// NewChatModel builds the chat model for the configured provider. The
// default is the OpenAI-compatible component, which also covers OpenRouter
// style gateways through base_url.
func NewChatModel(ctx context.Context, cfg pkg.ProviderConfig) (model.BaseChatModel, error) {
	switch cfg.Name {
	case "", "openai":
		maxTokens := cfg.MaxTokens
		temperature := float32(cfg.Temperature)
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})

	case "ollama":
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})

	case "deepseek":
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
		})

	case "ark":
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
}
