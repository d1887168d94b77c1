package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

// apiError carries a provider's raw failure before rewriting.
type apiError struct {
	Provider models.Provider
	Model    string
	Status   int
	Message  string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Provider, e.Status)
}

// Vendor error signatures that mean "this model cannot take a file or image
// attachment". Matched case-insensitively against the raw message.
var attachmentSignatures = []string{
	"does not support image",
	"does not support file",
	"image input is not supported",
	"file input is not supported",
	"unsupported_media",
	"invalid content type for this model",
}

// rewriteAPIError turns a raw provider rejection into the user-actionable
// categorical error the rest of the pipeline handles.
func rewriteAPIError(e *apiError) error {
	msg := strings.ToLower(e.Message)

	for _, sig := range attachmentSignatures {
		if strings.Contains(msg, sig) {
			mediaType := "files"
			if strings.Contains(msg, "image") {
				mediaType = "images"
			}
			return models.Errorf(models.ErrKindAttachment,
				"model %q does not support attaching %s", e.Model, mediaType)
		}
	}

	switch e.Status {
	case 401, 403:
		return models.Errorf(models.ErrKindModelAccess,
			"%s rejected access to model %q (HTTP %d): check your API key and plan: %s",
			e.Provider, e.Model, e.Status, e.Message)
	case 404:
		// Anthropic reports missing models as a typed not_found_error; both
		// that and a plain 404 mean the account cannot use the model.
		if e.Provider == models.ProviderAnthropic || e.Provider == models.ProviderAnthropicCompatible {
			if strings.Contains(msg, "not_found_error") || strings.Contains(msg, "permission_error") {
				return models.Errorf(models.ErrKindModelAccess,
					"anthropic reports model %q is not available to this API key", e.Model)
			}
		}
		return models.Errorf(models.ErrKindModelAccess,
			"model %q was not found at %s (HTTP 404)", e.Model, e.Provider)
	case 429:
		return models.Errorf(models.ErrKindRateLimit,
			"%s rate limited model %q: %s", e.Provider, e.Model, e.Message)
	}
	return models.NewKindError(models.ErrKindModelAccess, e)
}

// rewriteTransportError maps network-level failures. Deadline expiry becomes
// the canonical "request timed out" message.
func rewriteTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Errorf(models.ErrKindTimeout, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.Errorf(models.ErrKindTimeout, "request timed out")
	}
	return err
}

// IsRetryableForFallback reports whether auto-mode should move on to the next
// candidate after err. Credential and access problems are; a user-facing
// input-too-large refusal is not.
func IsRetryableForFallback(err error) bool {
	switch models.KindOf(err) {
	case models.ErrKindTooLarge, models.ErrKindInput:
		return false
	}
	return true
}
