package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// HTTP calls a generation gateway that accepts GenerationRequest as JSON
// on POST /v1/generate and answers with a GenerationResult.
type HTTP struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewHTTP creates an HTTP provider. A zero timeout means no client timeout.
func NewHTTP(baseURL, apiKey string, timeout time.Duration) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid provider URL %q", baseURL)
	}
	return &HTTP{
		baseURL:     strings.TrimRight(u.String(), "/"),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: 2,
		backoff:     250 * time.Millisecond,
	}, nil
}

// Generate posts the request, retrying once on transport errors and 5xx.
// Every attempt carries the request ID as its Idempotency-Key so the
// gateway can drop a retry of a request it already started.
func (h *HTTP) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		status, respBody, err := h.do(ctx, req.RequestID, body)
		if ctx.Err() != nil {
			return models.GenerationResult{}, ctx.Err()
		}
		if !isRetryable(err, status) {
			return decodeResult(status, respBody)
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%w: upstream status %d", ErrGenerationFailed, status)
		}
		log.WithError(lastErr).WithFields(log.Fields{
			"request_id": req.RequestID,
			"model":      req.ModelID,
			"attempt":    attempt,
		}).Warn("provider attempt failed")

		if attempt < h.maxAttempts {
			select {
			case <-ctx.Done():
				return models.GenerationResult{}, ctx.Err()
			case <-time.After(h.backoff):
			}
		}
	}
	return models.GenerationResult{}, lastErr
}

func (h *HTTP) do(ctx context.Context, requestID string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("Idempotency-Key", requestID)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// isRetryable returns true if the error or status code warrants another attempt.
func isRetryable(err error, statusCode int) bool {
	if err != nil {
		return true
	}
	return statusCode >= 500
}

func decodeResult(status int, body []byte) (models.GenerationResult, error) {
	var res models.GenerationResult
	if err := json.Unmarshal(body, &res); err != nil {
		if status >= 300 {
			return models.GenerationResult{}, fmt.Errorf("%w: upstream status %d", ErrGenerationFailed, status)
		}
		return models.GenerationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if status >= 300 || !res.Success {
		msg := res.Error
		if msg == "" {
			msg = fmt.Sprintf("upstream status %d", status)
		}
		return res, fmt.Errorf("%w: %s", ErrGenerationFailed, msg)
	}
	return res, nil
}
