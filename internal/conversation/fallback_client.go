package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// FallbackLLMClient sends each request to a primary model and retries it once
// on a secondary provider when the primary fails.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFallbackLLMClient pairs two providers. A nil secondary makes the client
// a pass-through to primary.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Component("llm_fallback"),
	}
}

// Complete returns the primary reply, or the secondary one when the primary
// errors. A cancelled or expired context is returned as is. When both
// providers fail the returned error wraps both causes.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if c.secondary == nil || ctx.Err() != nil {
		return LLMResponse{}, primaryErr
	}

	c.logger.Warn("primary model failed, retrying on secondary", "error", primaryErr)

	// Model ids are provider specific; the secondary uses its own default.
	retry := req
	retry.Model = ""
	started := time.Now()
	resp, secondaryErr := c.secondary.Complete(ctx, retry)
	if secondaryErr != nil {
		c.logger.Error("secondary model failed too",
			"primary_error", primaryErr,
			"secondary_error", secondaryErr,
		)
		return LLMResponse{}, errors.Join(primaryErr, secondaryErr)
	}

	c.logger.Info("secondary model answered", "duration_ms", time.Since(started).Milliseconds())
	return resp, nil
}
