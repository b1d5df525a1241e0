package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/metrics"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/orchestrator"
)

const maxBodyBytes = 1 << 20

type generateRequest struct {
	AccountID string `json:"account_id" validate:"required,max=128"`
	Message   string `json:"message" validate:"max=20000"`
	Resource  string `json:"resource" validate:"omitempty,oneof=chat image video music voice presentation"`
	TokenCost int64  `json:"token_cost" validate:"gte=0"`
}

type classifyRequest struct {
	Message string `json:"message" validate:"required,max=20000"`
}

type classifyResponse struct {
	models.IntentResult
	ShouldAutoRoute        bool                `json:"should_auto_route"`
	ShouldShowConfirmation bool                `json:"should_show_confirmation"`
	Complexity             complexity.Analysis `json:"complexity"`
}

type usageResponse struct {
	AccountID string                    `json:"account_id"`
	Tier      models.Tier               `json:"tier"`
	Quotas    []models.QuotaCheckResult `json:"quotas"`
	Tokens    tokensView                `json:"tokens"`
}

type tokensView struct {
	Period    string `json:"period"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allow(w, req.AccountID) {
		return
	}

	res := s.d.Orchestrator.Execute(r.Context(), orchestrator.Request{
		AccountID: req.AccountID,
		Message:   req.Message,
		Resource:  models.ResourceType(req.Resource),
		TokenCost: req.TokenCost,
	})

	code := statusFor(res)
	if code == http.StatusServiceUnavailable && errors.Is(res.Err, orchestrator.ErrInfrastructure) {
		log.WithError(res.Err).WithField("request_id", res.RequestID).Error("generation infrastructure failure")
		writeJSONError(w, code, "generation service unavailable, please retry")
		return
	}
	writeJSON(w, code, res)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	intent := s.d.Intents.Classify(req.Message)
	writeJSON(w, http.StatusOK, classifyResponse{
		IntentResult:           intent,
		ShouldAutoRoute:        s.d.Intents.ShouldAutoRoute(intent),
		ShouldShowConfirmation: s.d.Intents.ShouldShowConfirmation(intent),
		Complexity:             s.d.Complexity.Analyze(req.Message),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "account id is required")
		return
	}
	if !s.allow(w, id) {
		return
	}

	ctx := r.Context()
	quotas := s.d.Ledger.Status(ctx, id)
	resp := usageResponse{AccountID: id, Quotas: quotas}
	if len(quotas) > 0 {
		resp.Tier = quotas[0].Tier
	}
	bal := s.d.Tokens.BalanceTier(ctx, id, resp.Tier)
	resp.Tokens = tokensView{
		Period:    s.d.Tokens.Period(),
		Used:      bal.Used,
		Limit:     bal.Limit,
		Remaining: bal.Remaining(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tier, err := models.ParseTier(q.Get("tier"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	resource, err := models.ParseResource(q.Get("resource"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cx := models.ComplexityMedium
	if v := q.Get("complexity"); v != "" {
		if cx, err = models.ParseComplexity(v); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, s.d.Router.Route(tier, resource, cx))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (s *Server) allow(w http.ResponseWriter, accountID string) bool {
	if s.limiter.Allow(accountID) {
		return true
	}
	metrics.RateLimitedTotal.Inc()
	writeJSONError(w, http.StatusTooManyRequests, "rate_limited")
	return false
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// statusFor maps an orchestration outcome to an HTTP status.
func statusFor(res orchestrator.Result) int {
	switch res.Outcome {
	case orchestrator.OutcomeSuccess:
		return http.StatusOK
	case orchestrator.OutcomeQuotaExceeded:
		return http.StatusTooManyRequests
	case orchestrator.OutcomeInsufficientBalance:
		return http.StatusPaymentRequired
	case orchestrator.OutcomeNotEntitled:
		return http.StatusForbidden
	case orchestrator.OutcomeInvalidRequest:
		return http.StatusBadRequest
	case orchestrator.OutcomeConfirmationRequired:
		return http.StatusConflict
	case orchestrator.OutcomeGenerationFailed:
		if errors.Is(res.Err, orchestrator.ErrInfrastructure) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case orchestrator.OutcomeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"kroniq_error","code":%d}}`, message, code)
}
