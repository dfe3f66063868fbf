package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/turnos-ai/internal/actions"
	appbootstrap "github.com/wolfman30/turnos-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/turnos-ai/internal/config"
	"github.com/wolfman30/turnos-ai/internal/conversation"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// llmtest sends one scripted booking conversation to the configured provider
// (and its fallback, if any) and reports whether the reply carried a
// well-formed action block.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := appbootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("❌ Failed to build LLM client: %v\n", err)
		os.Exit(1)
	}

	loc := cfg.Location()
	now := time.Now().In(loc)
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	messages := []conversation.ChatMessage{
		{Role: conversation.ChatRoleUser, Content: "Hola, quiero sacar un turno para un control general."},
		{Role: conversation.ChatRoleAssistant, Content: "¡Hola! Claro, ¿para qué día y horario te queda cómodo?"},
		{Role: conversation.ChatRoleUser, Content: "Mañana " + tomorrow + " a las 10:00, por favor. Confirmalo."},
	}

	req := conversation.LLMRequest{
		System: []string{conversation.BuildSystemPrompt(conversation.SystemPromptInput{
			Clinic:   cfg.ClinicName,
			Now:      now,
			Location: loc,
			User:     conversation.Principal{Email: "prueba@turnos.test", Name: "Paciente Prueba"},
		})},
		Messages:    messages,
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Temperature: float32(cfg.LLMTemperature),
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("LLM Provider Test (primary=%s fallback=%s)\n", cfg.LLMProvider, cfg.LLMFallbackProvider)
	fmt.Println(strings.Repeat("=", 60))

	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("❌ LLM error after %v: %v\n", elapsed.Round(time.Millisecond), err)
		os.Exit(1)
	}

	fmt.Printf("✅ Response (%v):\n%s\n", elapsed.Round(time.Millisecond), resp.Text)
	fmt.Printf("Tokens: in=%d, out=%d, stop=%s\n", resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason)

	result := actions.NewExtractor(loc).Extract(resp.Text)
	fmt.Println(strings.Repeat("-", 60))
	if !result.HasAction() {
		fmt.Println("⚠️  No action block detected in the reply")
		return
	}
	fmt.Printf("✅ Action detected: %s\n", result.Action.Kind())
	if create, ok := result.Action.(actions.CreateAppointment); ok {
		for k, v := range create.Fields() {
			fmt.Printf("    %s: %s\n", k, v)
		}
	}
}
