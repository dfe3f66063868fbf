package bootstrap

import (
	"context"
	"testing"

	"github.com/wolfman30/turnos-ai/internal/appointments"
	appconfig "github.com/wolfman30/turnos-ai/internal/config"
	"github.com/wolfman30/turnos-ai/internal/conversation"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

func awsTestConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	return &appconfig.Config{
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		Timezone:           "America/Argentina/Buenos_Aires",
		ClinicName:         "Consultorio Test",
	}
}

func TestBuildConversationServiceRequiresConfig(t *testing.T) {
	lifecycle := appointments.NewService(appointments.NewInMemoryRepository(), nil)
	if _, err := BuildConversationService(context.Background(), nil, nil, lifecycle, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildConversationServiceRequiresLifecycle(t *testing.T) {
	cfg := awsTestConfig(t)
	if _, err := BuildConversationService(context.Background(), cfg, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil lifecycle")
	}
}

func TestBuildConversationServiceInMemory(t *testing.T) {
	cfg := awsTestConfig(t)
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	lifecycle := appointments.NewService(appointments.NewInMemoryRepository(), nil)

	svc, err := BuildConversationService(context.Background(), cfg, nil, lifecycle, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc == nil {
		t.Fatalf("expected service")
	}
}

func TestBuildConversationServiceMissingProviderKey(t *testing.T) {
	cfg := awsTestConfig(t)
	cfg.LLMProvider = "gemini"
	lifecycle := appointments.NewService(appointments.NewInMemoryRepository(), nil)

	if _, err := BuildConversationService(context.Background(), cfg, nil, lifecycle, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error without GEMINI_API_KEY")
	}
}

func TestBuildLLMClient(t *testing.T) {
	logger := logging.New("error")

	tests := []struct {
		name     string
		primary  string
		fallback string
		openAI   string
		wantType any
		wantErr  bool
	}{
		{name: "single provider", primary: "openai", openAI: "sk-test", wantType: &conversation.OpenAILLMClient{}},
		{name: "primary with fallback", primary: "bedrock", fallback: "openai", openAI: "sk-test", wantType: &conversation.FallbackLLMClient{}},
		{name: "unusable fallback is skipped", primary: "bedrock", fallback: "openai", wantType: &conversation.BedrockLLMClient{}},
		{name: "same fallback is ignored", primary: "openai", fallback: "openai", openAI: "sk-test", wantType: &conversation.OpenAILLMClient{}},
		{name: "unknown provider", primary: "llama-local", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := awsTestConfig(t)
			cfg.LLMProvider = tt.primary
			cfg.LLMFallbackProvider = tt.fallback
			cfg.OpenAIAPIKey = tt.openAI

			client, err := BuildLLMClient(context.Background(), cfg, logger)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got client %T", client)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.wantType.(type) {
			case *conversation.OpenAILLMClient:
				if _, ok := client.(*conversation.OpenAILLMClient); !ok {
					t.Fatalf("expected OpenAILLMClient, got %T", client)
				}
			case *conversation.FallbackLLMClient:
				if _, ok := client.(*conversation.FallbackLLMClient); !ok {
					t.Fatalf("expected FallbackLLMClient, got %T", client)
				}
			case *conversation.BedrockLLMClient:
				if _, ok := client.(*conversation.BedrockLLMClient); !ok {
					t.Fatalf("expected BedrockLLMClient, got %T", client)
				}
			}
		})
	}
}
