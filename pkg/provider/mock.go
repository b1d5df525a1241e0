package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Mock is an in-process provider for tests and local development.
type Mock struct {
	// Fail makes every call report a failed generation.
	Fail bool
	// Delay is waited before answering; cancellation ends the wait early.
	Delay time.Duration
	// TokensUsed is reported on success when non-zero.
	TokensUsed int64

	calls atomic.Int64
}

// Calls returns how many times Generate was invoked.
func (m *Mock) Calls() int64 { return m.calls.Load() }

func (m *Mock) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	m.calls.Add(1)

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return models.GenerationResult{}, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return models.GenerationResult{}, err
	}
	if m.Fail {
		return models.GenerationResult{Error: "mock failure"}, fmt.Errorf("%w: mock failure", ErrGenerationFailed)
	}
	return models.GenerationResult{
		Success:    true,
		ResultURL:  fmt.Sprintf("mock://%s/%s/%s", req.Resource, req.ModelID, req.RequestID),
		TokensUsed: m.TokensUsed,
	}, nil
}
