package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/summarize/internal/models"
)

func TestRewriteModelAccessNamesModel(t *testing.T) {
	err := rewriteAPIError(&apiError{
		Provider: models.ProviderOpenAI,
		Model:    "gpt-5-mini",
		Status:   403,
		Message:  "insufficient permissions",
	})
	assert.True(t, models.IsKind(err, models.ErrKindModelAccess))
	assert.Contains(t, err.Error(), "gpt-5-mini")
}

func TestRewriteAnthropicNotFound(t *testing.T) {
	err := rewriteAPIError(&apiError{
		Provider: models.ProviderAnthropic,
		Model:    "claude-x",
		Status:   404,
		Message:  "not_found_error: model: claude-x",
	})
	assert.True(t, models.IsKind(err, models.ErrKindModelAccess))
	assert.Contains(t, err.Error(), "claude-x")
	assert.Contains(t, err.Error(), "not available")
}

func TestRewriteRateLimit(t *testing.T) {
	err := rewriteAPIError(&apiError{
		Provider: models.ProviderOpenRouter,
		Model:    "m",
		Status:   429,
		Message:  "rate limit exceeded",
	})
	assert.True(t, models.IsKind(err, models.ErrKindRateLimit))
}

func TestRewriteAttachmentUnsupported(t *testing.T) {
	err := rewriteAPIError(&apiError{
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o-mini",
		Status:   400,
		Message:  "This model does not support image inputs",
	})
	assert.True(t, models.IsKind(err, models.ErrKindAttachment))
	assert.Contains(t, err.Error(), "images")
}

func TestRewriteTimeout(t *testing.T) {
	err := rewriteTransportError(context.DeadlineExceeded)
	assert.True(t, models.IsKind(err, models.ErrKindTimeout))
	assert.Equal(t, "request timed out", err.Error())
}
