package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/turnos-ai/cmd/mainconfig"
	appconfig "github.com/wolfman30/turnos-ai/internal/config"
	"github.com/wolfman30/turnos-ai/internal/conversation"
	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// BuildConversationService wires the chat orchestrator: model client, turn
// store (Postgres when a pool is given) and the appointment lifecycle.
func BuildConversationService(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, lifecycle conversation.Lifecycle, m *metrics.BookingMetrics, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("bootstrap: appointment lifecycle is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	llm, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	var turns conversation.TurnStore
	if pool != nil {
		turns = conversation.NewPostgresTurnStore(pool)
	} else {
		logger.Warn("no database configured; conversation history is kept in memory")
		turns = conversation.NewInMemoryTurnStore()
	}

	return conversation.NewService(llm, turns, lifecycle, conversation.Config{
		Clinic:       cfg.ClinicName,
		Location:     cfg.Location(),
		HistoryLimit: cfg.ChatHistoryLimit,
		MaxTokens:    int32(cfg.LLMMaxTokens),
		Temperature:  float32(cfg.LLMTemperature),
	}, logger, conversation.WithMetrics(m)), nil
}

// BuildLLMClient returns the configured provider, wrapped in a fallback
// client when LLM_FALLBACK_PROVIDER names a second usable provider.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	if logger == nil {
		logger = logging.Default()
	}
	primary, err := newLLMProvider(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", cfg.LLMProvider, err)
	}

	name := cfg.LLMFallbackProvider
	if name == "" || name == cfg.LLMProvider {
		return primary, nil
	}
	fallback, err := newLLMProvider(ctx, cfg, name)
	if err != nil {
		logger.Warn("fallback llm provider unavailable, continuing without it", "provider", name, "error", err)
		return primary, nil
	}
	logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", name)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
}

func newLLMProvider(ctx context.Context, cfg *appconfig.Config, name string) (conversation.LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		client, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "bedrock":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, errors.New("unknown provider")
	}
}
