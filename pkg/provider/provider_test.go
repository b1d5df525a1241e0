package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReq = models.GenerationRequest{
	RequestID:   "req-1",
	ModelID:     "flux-dev",
	Resource:    models.ResourceImage,
	Constraints: models.Constraints{MaxResolution: 1024},
	Prompt:      "a lighthouse",
}

func TestHTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer pk-1", r.Header.Get("Authorization"))

		var req models.GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testReq, req)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"result_url":"https://cdn.example.com/1.png","tokens_used":900}`))
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "pk-1", time.Second)
	require.NoError(t, err)

	res, err := p.Generate(context.Background(), testReq)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "https://cdn.example.com/1.png", res.ResultURL)
	assert.Equal(t, int64(900), res.TokensUsed)
}

func TestHTTPReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"error":"prompt rejected"}`))
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorContains(t, err, "prompt rejected")
}

func TestHTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "", time.Second)
	require.NoError(t, err)
	p.backoff = time.Millisecond

	res, err := p.Generate(context.Background(), testReq)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPRetryReusesIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	var keys [2]atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		keys[n-1].Store(r.Header.Get("Idempotency-Key"))
		if n == 1 {
			// drop the connection after the gateway has seen the request
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "", time.Second)
	require.NoError(t, err)
	p.backoff = time.Millisecond

	res, err := p.Generate(context.Background(), testReq)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "req-1", keys[0].Load())
	assert.Equal(t, "req-1", keys[1].Load())
}

func TestHTTPGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "", time.Second)
	require.NoError(t, err)
	p.backoff = time.Millisecond

	_, err = p.Generate(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestHTTPCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := NewHTTP(srv.URL, "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, testReq)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewHTTPInvalidURL(t *testing.T) {
	_, err := NewHTTP("not a url", "", 0)
	assert.Error(t, err)
}

func TestMock(t *testing.T) {
	m := &Mock{TokensUsed: 42}
	res, err := m.Generate(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, "mock://image/flux-dev/req-1", res.ResultURL)
	assert.Equal(t, int64(42), res.TokensUsed)

	m.Fail = true
	_, err = m.Generate(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, int64(2), m.Calls())
}
