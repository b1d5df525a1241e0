// Package quota meters discrete generations per account, resource type and
// accounting period against the tier limits of the active policy.
package quota

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// FallbackLimits apply while the store is unreachable. They are at or
// below the free tier of any sane policy.
var FallbackLimits = map[models.ResourceType]int64{
	models.ResourceChat:         10,
	models.ResourceImage:        1,
	models.ResourceVideo:        0,
	models.ResourceMusic:        0,
	models.ResourceVoice:        1,
	models.ResourcePresentation: 0,
}

// UsageStore is the subset of store.Store the ledger needs.
type UsageStore interface {
	GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error)
	IncrementUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error)
	ListUsage(ctx context.Context, accountID, period string) ([]models.UsageRecord, error)
}

// TierResolver resolves an account to its tier.
type TierResolver interface {
	Resolve(ctx context.Context, accountID string) models.Tier
}

type degradedKey struct {
	account  string
	resource models.ResourceType
	period   string
}

// Ledger checks and records per-resource usage.
type Ledger struct {
	store  UsageStore
	tiers  TierResolver
	policy *config.PolicyHolder
	now    func() time.Time

	// counts granted while the store was down, so the fallback limits
	// still bound an outage
	mu       sync.Mutex
	degraded map[degradedKey]int64
}

// NewLedger creates a Ledger.
func NewLedger(s UsageStore, tiers TierResolver, policy *config.PolicyHolder) *Ledger {
	return &Ledger{
		store:    s,
		tiers:    tiers,
		policy:   policy,
		now:      time.Now,
		degraded: make(map[degradedKey]int64),
	}
}

// SetClock overrides the time source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Period returns the current period key of resource.
func (l *Ledger) Period(resource models.ResourceType) string {
	return models.PeriodKey(l.policy.Get().Window(resource), l.now())
}

// Check resolves the account's tier and checks resource against it.
// It never writes to the store.
func (l *Ledger) Check(ctx context.Context, accountID string, resource models.ResourceType) models.QuotaCheckResult {
	return l.CheckTier(ctx, accountID, l.tiers.Resolve(ctx, accountID), resource)
}

// CheckTier checks resource against an already resolved tier.
func (l *Ledger) CheckTier(ctx context.Context, accountID string, tier models.Tier, resource models.ResourceType) models.QuotaCheckResult {
	p := l.policy.Get()
	now := l.now()
	period := models.PeriodKey(p.Window(resource), now)

	current, err := l.store.GetUsage(ctx, accountID, resource, period)
	return l.evaluate(p, now, accountID, tier, resource, current, err)
}

// evaluate turns a usage count, or the error of reading it, into a check
// result.
func (l *Ledger) evaluate(p *config.Policy, now time.Time, accountID string, tier models.Tier,
	resource models.ResourceType, current int64, err error) models.QuotaCheckResult {
	window := p.Window(resource)
	res := models.QuotaCheckResult{
		Resource: resource,
		Tier:     tier,
		Limit:    p.Limit(tier, resource),
		Window:   window,
		ResetAt:  models.PeriodEnd(window, now),
	}

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"resource":   resource,
			"op":         "quota_check",
		}).Warn("usage lookup failed, applying fallback limits")
		current = l.degradedCount(accountID, resource, models.PeriodKey(window, now))
		res.Tier = models.TierFree
		res.Limit = FallbackLimits[resource]
		res.Degraded = true
	}
	res.Current = current

	switch {
	case res.Limit == 0:
		res.Message = fmt.Sprintf("%s generation is not available on the %s plan.",
			titleCase(string(resource)), res.Tier.DisplayName())
	case current >= res.Limit:
		res.Message = fmt.Sprintf("You've reached your %s %s limit (%d/%d) on the %s plan. It resets on %s.",
			windowAdjective(window), resource, current, res.Limit, res.Tier.DisplayName(), res.ResetAt.Format("2006-01-02"))
	default:
		res.Allowed = true
		res.Message = fmt.Sprintf("%d of %d %s generations remaining this %s.",
			res.Remaining(), res.Limit, resource, windowNoun(window))
	}
	return res
}

// Increment records one generation. Failures are logged and reported as
// false; a generation that already happened is never rolled back.
func (l *Ledger) Increment(ctx context.Context, accountID string, resource models.ResourceType) bool {
	period := l.Period(resource)
	n, err := l.store.IncrementUsage(ctx, accountID, resource, period)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"resource":   resource,
			"period":     period,
			"op":         "quota_increment",
		}).Warn("usage increment failed")
		l.addDegraded(degradedKey{accountID, resource, period})
		return false
	}
	log.WithFields(log.Fields{
		"account_id": accountID,
		"resource":   resource,
		"period":     period,
		"count":      n,
	}).Debug("usage recorded")
	return true
}

// Status checks every resource type for an account with one tier lookup
// and one usage listing per distinct period.
func (l *Ledger) Status(ctx context.Context, accountID string) []models.QuotaCheckResult {
	tier := l.tiers.Resolve(ctx, accountID)
	p := l.policy.Get()
	now := l.now()

	type listing struct {
		counts map[models.ResourceType]int64
		err    error
	}
	byPeriod := make(map[string]listing)

	out := make([]models.QuotaCheckResult, 0, len(models.AllResources))
	for _, r := range models.AllResources {
		period := models.PeriodKey(p.Window(r), now)
		lst, ok := byPeriod[period]
		if !ok {
			records, err := l.store.ListUsage(ctx, accountID, period)
			lst = listing{counts: make(map[models.ResourceType]int64, len(records)), err: err}
			for _, rec := range records {
				lst.counts[rec.Resource] = rec.Count
			}
			byPeriod[period] = lst
		}
		out = append(out, l.evaluate(p, now, accountID, tier, r, lst.counts[r], lst.err))
	}
	return out
}

func (l *Ledger) degradedCount(accountID string, resource models.ResourceType, period string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded[degradedKey{accountID, resource, period}]
}

// addDegraded counts one degraded generation. Adding a new key drops the
// keys of periods that have already ended.
func (l *Ledger) addDegraded(k degradedKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.degraded[k]; !ok {
		p := l.policy.Get()
		now := l.now()
		for old := range l.degraded {
			if old.period != models.PeriodKey(p.Window(old.resource), now) {
				delete(l.degraded, old)
			}
		}
	}
	l.degraded[k]++
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func windowAdjective(w models.Window) string {
	if w == models.WindowDaily {
		return "daily"
	}
	return "monthly"
}

func windowNoun(w models.Window) string {
	if w == models.WindowDaily {
		return "day"
	}
	return "month"
}
