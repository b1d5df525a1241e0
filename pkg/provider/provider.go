// Package provider invokes the external generation services. The engine
// only sees success or failure; provider-specific payloads stay opaque.
package provider

import (
	"context"
	"errors"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// ErrGenerationFailed is wrapped by errors reported by a provider.
var ErrGenerationFailed = errors.New("generation failed")

// Provider synthesizes content for a routed request.
type Provider interface {
	Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error)
}
