package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/intent"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/orchestrator"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/provider"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/quota"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/router"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/memory"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tier"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tokens"
)

type testEnv struct {
	store *memory.Store
	mock  *provider.Mock
	srv   *Server
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	s := memory.New()
	holder := config.NewPolicyHolder(config.DefaultPolicy())
	resolver := tier.NewResolver(s)
	ledger := quota.NewLedger(s, resolver, holder)
	acct := tokens.NewAccount(s, resolver, holder)
	classifier := intent.New()
	analyzer := complexity.New()
	rt := router.New(holder)
	mock := &provider.Mock{}

	orch := orchestrator.New(orchestrator.Deps{
		Tiers:      resolver,
		Ledger:     ledger,
		Tokens:     acct,
		Router:     rt,
		Intents:    classifier,
		Complexity: analyzer,
		Provider:   mock,
	})

	return &testEnv{
		store: s,
		mock:  mock,
		srv: New(":0", cfg, Deps{
			Orchestrator: orch,
			Ledger:       ledger,
			Tokens:       acct,
			Router:       rt,
			Intents:      classifier,
			Complexity:   analyzer,
		}),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGenerateSuccess(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})
	require.NoError(t, e.store.SetAccountTier(context.Background(), "acct-pro", models.TierPro))

	rec := do(t, e.srv, http.MethodPost, "/v1/generate",
		`{"account_id":"acct-pro","message":"a detailed cinematic photorealistic city","resource":"image"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[orchestrator.Result](t, rec)
	assert.Equal(t, orchestrator.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.TierPro, res.Tier)
	assert.Equal(t, "flux-pro", res.Decision.ModelID)
	assert.True(t, res.UsageRecorded)
	assert.Equal(t, int64(1), e.mock.Calls())
}

func TestGenerateOutcomeStatus(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	rec := do(t, e.srv, http.MethodPost, "/v1/generate",
		`{"account_id":"acct-free","message":"make a video of a sunset","resource":"video"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, orchestrator.OutcomeNotEntitled, decodeBody[orchestrator.Result](t, rec).Outcome)

	for i := 0; i < 2; i++ {
		rec = do(t, e.srv, http.MethodPost, "/v1/generate",
			`{"account_id":"acct-free","message":"a cat","resource":"image"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = do(t, e.srv, http.MethodPost, "/v1/generate",
		`{"account_id":"acct-free","message":"a cat","resource":"image"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	res := decodeBody[orchestrator.Result](t, rec)
	assert.Equal(t, orchestrator.OutcomeQuotaExceeded, res.Outcome)
	assert.Contains(t, res.Message, "(2/2)")
	assert.Equal(t, int64(2), e.mock.Calls())
}

func TestGenerateFailureIsBadGateway(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})
	e.mock.Fail = true

	rec := do(t, e.srv, http.MethodPost, "/v1/generate",
		`{"account_id":"acct-1","message":"hello there","resource":"chat"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, orchestrator.OutcomeGenerationFailed, decodeBody[orchestrator.Result](t, rec).Outcome)
}

func TestGenerateValidation(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing account", `{"message":"hi"}`, "account_id is required"},
		{"bad resource", `{"account_id":"a","message":"hi","resource":"hologram"}`, "resource must be one of"},
		{"negative cost", `{"account_id":"a","message":"hi","token_cost":-5}`, "token_cost failed gte validation"},
		{"malformed", `{"account_id":`, "invalid JSON body"},
		{"unknown field", `{"account_id":"a","plan":"pro"}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e.srv, http.MethodPost, "/v1/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Contains(t, rec.Body.String(), `"type":"kroniq_error"`)
		})
	}
	assert.Zero(t, e.mock.Calls())
}

func TestClassify(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	rec := do(t, e.srv, http.MethodPost, "/v1/classify", `{"message":"generate a video of waves"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Intent                 models.ResourceType `json:"intent"`
		Confidence             float64             `json:"confidence"`
		ShouldAutoRoute        bool                `json:"should_auto_route"`
		ShouldShowConfirmation bool                `json:"should_show_confirmation"`
		Complexity             complexity.Analysis `json:"complexity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.ResourceVideo, got.Intent)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.False(t, got.ShouldAutoRoute)
	assert.True(t, got.ShouldShowConfirmation)
	assert.Equal(t, models.ComplexitySimple, got.Complexity.Class)
}

func TestUsage(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})
	do(t, e.srv, http.MethodPost, "/v1/generate", `{"account_id":"acct-1","message":"hello","resource":"chat"}`)

	rec := do(t, e.srv, http.MethodGet, "/v1/accounts/acct-1/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[usageResponse](t, rec)

	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, models.TierFree, got.Tier)
	require.Len(t, got.Quotas, len(models.AllResources))
	for _, q := range got.Quotas {
		if q.Resource == models.ResourceChat {
			assert.Equal(t, int64(1), q.Current)
			assert.Equal(t, int64(30), q.Limit)
		}
	}
	assert.Equal(t, int64(15000), got.Tokens.Limit)
	assert.Equal(t, int64(200), got.Tokens.Used)
	assert.Equal(t, int64(14800), got.Tokens.Remaining)
}

func TestRoute(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	rec := do(t, e.srv, http.MethodGet, "/v1/route?tier=pro&resource=video&complexity=complex", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[models.RoutingDecision](t, rec)
	assert.True(t, d.Available)
	assert.Equal(t, "veo", d.ModelID)
	assert.Equal(t, 10, d.Constraints.MaxDurationSec)

	rec = do(t, e.srv, http.MethodGet, "/v1/route?tier=free&resource=video", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[models.RoutingDecision](t, rec).Available)

	rec = do(t, e.srv, http.MethodGet, "/v1/route?tier=gold&resource=video", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitPerAccount(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, e.srv, http.MethodGet, "/v1/accounts/acct-1/usage", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, e.srv, http.MethodGet, "/v1/accounts/acct-1/usage", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")

	rec = do(t, e.srv, http.MethodGet, "/v1/accounts/acct-2/usage", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, e.srv.limiter.size())
}

func TestLimiterCleanup(t *testing.T) {
	l := newLimiterSet(1, 1)
	l.Allow("a")
	l.Allow("b")
	l.cleanup(-1)
	assert.Zero(t, l.size())

	var disabled *limiterSet = newLimiterSet(0, 0)
	assert.Nil(t, disabled)
	assert.True(t, disabled.Allow("anyone"))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	rec := do(t, e.srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, e.srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kroniq_http_requests_total")
}

func TestCORS(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{CORSOrigins: []string{"https://app.kroniq.ai"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/classify", nil)
	req.Header.Set("Origin", "https://app.kroniq.ai")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.kroniq.ai", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGenerateNeedsConfirmation(t *testing.T) {
	e := newTestServer(t, config.ServerConfig{})

	rec := do(t, e.srv, http.MethodPost, "/v1/generate",
		`{"account_id":"acct-1","message":"I need a video of my dog surfing"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, e.mock.Calls())
	res := decodeBody[orchestrator.Result](t, rec)
	assert.Equal(t, orchestrator.OutcomeConfirmationRequired, res.Outcome)
	require.NotNil(t, res.Intent)
	assert.Equal(t, models.ResourceVideo, res.Intent.Intent)
}

func TestStatusFor(t *testing.T) {
	infra := orchestrator.Result{Outcome: orchestrator.OutcomeGenerationFailed, Err: orchestrator.ErrInfrastructure}
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(infra))
	assert.Equal(t, http.StatusPaymentRequired, statusFor(orchestrator.Result{Outcome: orchestrator.OutcomeInsufficientBalance}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(orchestrator.Result{Outcome: orchestrator.OutcomeCancelled}))
}
