package ai

import (
	"context"
	"fmt"
	"strings"

	"mamachat/internal/config"
	"mamachat/internal/service/chat"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultClaudeModel = "claude-3-5-haiku-latest"
	defaultMaxTokens   = 2048
)

// NewProvider builds the chat provider named by name. A missing API key
// yields an error wrapping chat.ErrConfiguration.
func NewProvider(ctx context.Context, name string, cfg config.ProviderConfig) (chat.ChatProvider, error) {
	name = strings.ToLower(name)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: %w", name, chat.ErrConfiguration)
	}
	maxTokens := int(cfg.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch name {
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		modelName := orDefault(cfg.Model, defaultGeminiModel)
		if cfg.Adapter != "eino" {
			return NewGeminiProvider(client, modelName, int32(maxTokens)), nil
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:         client,
			Model:          modelName,
			MaxTokens:      &maxTokens,
			SafetySettings: safetySettings(),
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			Model:     orDefault(cfg.Model, defaultOpenAIModel),
			APIKey:    cfg.APIKey,
			MaxTokens: &maxTokens,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     orDefault(cfg.Model, defaultClaudeModel),
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", name, err)
	}
	return NewEinoProvider(name, chatModel, !cfg.NoSystemRole), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
