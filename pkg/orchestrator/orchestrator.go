// Package orchestrator runs a generation request end to end:
// resolve tier, check quota, check balance, route, invoke the provider and
// record the consumption.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/audit"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/events"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/metrics"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/provider"
)

// ErrInfrastructure marks failures of collaborators that the caller may
// retry. Its message is safe to show; the wrapped cause is not.
var ErrInfrastructure = errors.New("service temporarily unavailable")

// Outcome is the terminal state of a request.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeQuotaExceeded       Outcome = "quota_exceeded"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeNotEntitled         Outcome = "not_entitled"
	OutcomeGenerationFailed    Outcome = "generation_failed"
	OutcomeCancelled           Outcome = "cancelled"
	OutcomeInvalidRequest      Outcome = "invalid_request"

	// OutcomeConfirmationRequired stops a request whose inferred resource
	// must be confirmed. The caller resubmits with an explicit resource.
	OutcomeConfirmationRequired Outcome = "confirmation_required"
)

// accountingTimeout bounds post-generation writes, which run detached from
// the caller's cancellation.
const accountingTimeout = 5 * time.Second

// Request is one generation request.
type Request struct {
	AccountID string              `json:"account_id"`
	Message   string              `json:"message"`
	Resource  models.ResourceType `json:"resource,omitempty"`
	// TokenCost overrides the routed capability's cost when positive.
	TokenCost int64 `json:"token_cost,omitempty"`
}

// Result describes how a request ended, or that it was admitted.
type Result struct {
	RequestID      string                  `json:"request_id"`
	Outcome        Outcome                 `json:"outcome,omitempty"`
	Message        string                  `json:"message"`
	Resource       models.ResourceType     `json:"resource,omitempty"`
	Tier           models.Tier             `json:"tier,omitempty"`
	Complexity     models.ComplexityClass  `json:"complexity,omitempty"`
	Intent         *models.IntentResult    `json:"intent,omitempty"`
	Quota          models.QuotaCheckResult `json:"quota"`
	Balance        models.TokenBalance     `json:"balance"`
	Decision       models.RoutingDecision  `json:"decision"`
	ResultURL      string                  `json:"result_url,omitempty"`
	TokensCharged  int64                   `json:"tokens_charged,omitempty"`
	UsageRecorded  bool                    `json:"usage_recorded"`
	TokensDeducted bool                    `json:"tokens_deducted"`
	Err            error                   `json:"-"`
}

// Admitted reports whether the request passed admission and has not yet
// reached a terminal outcome.
func (r Result) Admitted() bool { return r.Outcome == "" }

// TierResolver resolves account tiers.
type TierResolver interface {
	Resolve(ctx context.Context, accountID string) models.Tier
}

// QuotaLedger checks and records per-resource usage.
type QuotaLedger interface {
	CheckTier(ctx context.Context, accountID string, tier models.Tier, resource models.ResourceType) models.QuotaCheckResult
	Increment(ctx context.Context, accountID string, resource models.ResourceType) bool
}

// TokenAccount reads and deducts token balances.
type TokenAccount interface {
	BalanceTier(ctx context.Context, accountID string, tier models.Tier) models.TokenBalance
	DeductTier(ctx context.Context, accountID string, tier models.Tier, amount int64) models.DeductResult
}

// ModelRouter picks the capability for a request.
type ModelRouter interface {
	Route(tier models.Tier, resource models.ResourceType, complexity models.ComplexityClass) models.RoutingDecision
}

// IntentClassifier picks a resource type for requests that name none.
type IntentClassifier interface {
	Classify(message string) models.IntentResult
	ShouldAutoRoute(res models.IntentResult) bool
}

// ComplexityAnalyzer classifies prompt complexity.
type ComplexityAnalyzer interface {
	Classify(prompt string) models.ComplexityClass
}

// AuditLogger persists terminal outcomes.
type AuditLogger interface {
	Log(ctx context.Context, e models.GenerationEntry) error
}

// Deps wires an Orchestrator. Audit and Events are optional.
type Deps struct {
	Tiers      TierResolver
	Ledger     QuotaLedger
	Tokens     TokenAccount
	Router     ModelRouter
	Intents    IntentClassifier
	Complexity ComplexityAnalyzer
	Provider   provider.Provider
	Audit      AuditLogger
	Events     events.Publisher
}

// Orchestrator coordinates the components for each request.
type Orchestrator struct {
	d   Deps
	now func() time.Time
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Orchestrator{d: d, now: time.Now}
}

// Admission is a request that passed admission control. Its Commit must be
// called once the provider has answered.
type Admission struct {
	o       *Orchestrator
	req     Request
	started time.Time
	cost    int64

	mu     sync.Mutex
	result Result
	done   bool
}

// Result returns the admission-time view of the request.
func (a *Admission) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// GenerationRequest is what the provider receives.
func (a *Admission) GenerationRequest() models.GenerationRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.GenerationRequest{
		RequestID:   a.result.RequestID,
		ModelID:     a.result.Decision.ModelID,
		Resource:    a.result.Resource,
		Constraints: a.result.Decision.Constraints,
		Prompt:      a.req.Message,
	}
}

// Admit runs every step up to and including routing. When admission
// fails the returned Admission is nil and the Result holds the outcome.
func (o *Orchestrator) Admit(ctx context.Context, req Request) (*Admission, Result) {
	started := o.now()
	res := Result{RequestID: uuid.NewString(), Resource: req.Resource}

	if strings.TrimSpace(req.AccountID) == "" {
		res.Outcome = OutcomeInvalidRequest
		res.Message = "account_id is required."
		return nil, o.finish(ctx, req, started, res)
	}

	if res.Resource == "" {
		intent := o.d.Intents.Classify(req.Message)
		res.Intent = &intent
		res.Resource = intent.Intent
		if !o.d.Intents.ShouldAutoRoute(intent) {
			res.Outcome = OutcomeConfirmationRequired
			res.Message = fmt.Sprintf("This looks like a %s request (%s). Resubmit with resource %q to confirm.",
				intent.Intent, intent.Reasoning, intent.Intent)
			return nil, o.finish(ctx, req, started, res)
		}
	} else if !res.Resource.Valid() {
		res.Outcome = OutcomeInvalidRequest
		res.Message = fmt.Sprintf("Unknown resource type %q.", res.Resource)
		return nil, o.finish(ctx, req, started, res)
	}

	// RESOLVE_TIER
	res.Tier = o.d.Tiers.Resolve(ctx, req.AccountID)

	// CHECK_QUOTA
	res.Quota = o.d.Ledger.CheckTier(ctx, req.AccountID, res.Tier, res.Resource)
	if !res.Quota.Allowed {
		res.Outcome = OutcomeQuotaExceeded
		if res.Quota.Limit == 0 {
			res.Outcome = OutcomeNotEntitled
		}
		res.Message = res.Quota.Message
		return nil, o.finish(ctx, req, started, res)
	}

	// CHECK_BALANCE
	res.Balance = o.d.Tokens.BalanceTier(ctx, req.AccountID, res.Tier)
	if res.Balance.Remaining() <= 0 {
		res.Outcome = OutcomeInsufficientBalance
		res.Message = fmt.Sprintf("Your token balance is used up (%d/%d) on the %s plan.",
			res.Balance.Used, res.Balance.Limit, res.Tier.DisplayName())
		return nil, o.finish(ctx, req, started, res)
	}

	// ROUTE
	res.Complexity = o.d.Complexity.Classify(req.Message)
	res.Decision = o.d.Router.Route(res.Tier, res.Resource, res.Complexity)
	if !res.Decision.Available {
		res.Outcome = OutcomeNotEntitled
		res.Message = fmt.Sprintf("%s generation is not available on the %s plan.",
			res.Resource, res.Tier.DisplayName())
		return nil, o.finish(ctx, req, started, res)
	}

	cost := res.Decision.TokenCost
	if req.TokenCost > 0 {
		cost = req.TokenCost
	}
	res.Message = "admitted"

	return &Admission{o: o, req: req, started: started, cost: cost, result: res}, res
}

// Commit records the provider's answer. Usage and tokens are only touched
// for a successful generation; a caller that went away after the provider
// answered is still charged. Calling Commit again returns the first result
// without side effects.
func (a *Admission) Commit(ctx context.Context, gen models.GenerationResult, genErr error) Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return a.result
	}
	a.done = true

	res := a.result
	o := a.o

	switch {
	case errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded):
		res.Outcome = OutcomeCancelled
		res.Message = "The generation was cancelled; nothing was charged."

	case genErr != nil && !errors.Is(genErr, provider.ErrGenerationFailed):
		res.Outcome = OutcomeGenerationFailed
		res.Err = fmt.Errorf("%w: %w", ErrInfrastructure, genErr)
		res.Message = "The generation service is temporarily unavailable. Please retry; nothing was charged."

	case genErr != nil || !gen.Success:
		res.Outcome = OutcomeGenerationFailed
		res.Message = "The generation failed; nothing was charged."

	default:
		res.Outcome = OutcomeSuccess
		res.ResultURL = gen.ResultURL
		res.Message = "Generation completed."
		cost := a.cost
		if gen.TokensUsed > 0 {
			cost = gen.TokensUsed
		}
		res.TokensCharged = cost
		o.record(ctx, a.req.AccountID, &res)
	}

	a.result = o.finish(ctx, a.req, a.started, res)
	return a.result
}

// record performs RECORD_USAGE and DEDUCT_TOKENS. Failures are logged and
// never change the outcome.
func (o *Orchestrator) record(ctx context.Context, accountID string, res *Result) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accountingTimeout)
	defer cancel()

	fields := log.Fields{
		"request_id": res.RequestID,
		"account_id": accountID,
		"resource":   res.Resource,
	}

	res.UsageRecorded = o.d.Ledger.Increment(actx, accountID, res.Resource)
	if !res.UsageRecorded {
		metrics.AccountingFailuresTotal.WithLabelValues("record_usage").Inc()
		log.WithFields(fields).Error("usage not recorded for a delivered generation")
	}

	deducted := o.d.Tokens.DeductTier(actx, accountID, res.Tier, res.TokensCharged)
	res.TokensDeducted = deducted.Success
	if deducted.Success {
		res.Balance = deducted.Balance
		metrics.TokensDeductedTotal.WithLabelValues(string(res.Resource), string(res.Tier)).Add(float64(res.TokensCharged))
	} else {
		metrics.AccountingFailuresTotal.WithLabelValues("deduct_tokens").Inc()
		log.WithFields(fields).WithField("tokens", res.TokensCharged).Error("tokens not deducted for a delivered generation")
	}
}

// Execute admits the request, invokes the provider and commits the result.
func (o *Orchestrator) Execute(ctx context.Context, req Request) Result {
	adm, res := o.Admit(ctx, req)
	if adm == nil {
		return res
	}
	gen, err := o.d.Provider.Generate(ctx, adm.GenerationRequest())
	return adm.Commit(ctx, gen, err)
}

// finish emits the audit entry, usage event and metrics of a terminal result.
func (o *Orchestrator) finish(ctx context.Context, req Request, started time.Time, res Result) Result {
	now := o.now()
	latency := now.Sub(started)
	outcome := string(res.Outcome)

	resourceLabel := string(res.Resource)
	if !res.Resource.Valid() {
		resourceLabel = "unknown"
	}
	metrics.GenerationsTotal.WithLabelValues(resourceLabel, string(res.Tier), outcome).Inc()
	metrics.GenerationDuration.WithLabelValues(resourceLabel).Observe(latency.Seconds())

	entry := log.WithFields(log.Fields{
		"request_id": res.RequestID,
		"account_id": req.AccountID,
		"resource":   res.Resource,
		"tier":       res.Tier,
		"model":      res.Decision.ModelID,
		"outcome":    outcome,
	})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("generation request finished")
	} else {
		entry.Debug("generation request finished")
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accountingTimeout)
	defer cancel()

	if o.d.Audit != nil {
		hash, prefix := audit.HashAccount(req.AccountID)
		err := o.d.Audit.Log(dctx, models.GenerationEntry{
			RequestID:     res.RequestID,
			AccountHash:   hash,
			AccountPrefix: prefix,
			Resource:      res.Resource,
			Tier:          res.Tier,
			Complexity:    res.Complexity,
			ModelID:       res.Decision.ModelID,
			Outcome:       outcome,
			Message:       res.Message,
			Tokens:        res.TokensCharged,
			LatencyMs:     latency.Milliseconds(),
			CreatedAt:     now,
		})
		if err != nil {
			log.WithError(err).WithField("request_id", res.RequestID).Warn("audit log failed")
		}
	}

	err := o.d.Events.Publish(dctx, events.Event{
		RequestID:  res.RequestID,
		AccountID:  req.AccountID,
		Resource:   res.Resource,
		Tier:       res.Tier,
		Complexity: res.Complexity,
		ModelID:    res.Decision.ModelID,
		Outcome:    outcome,
		Tokens:     res.TokensCharged,
		Recorded:   res.UsageRecorded && res.TokensDeducted,
		Timestamp:  now,
	})
	if err != nil {
		log.WithError(err).WithField("request_id", res.RequestID).Warn("event publish failed")
	}

	return res
}
