// Package tokens tracks the continuous token budget of each account.
package tokens

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// BalanceStore is the subset of store.Store the account needs.
type BalanceStore interface {
	GetTokenBalance(ctx context.Context, accountID, period string) (models.TokenBalance, bool, error)
	DeductTokens(ctx context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error)
	SetTokenLimit(ctx context.Context, accountID, period string, limit int64) error
}

// TierResolver resolves an account to its tier.
type TierResolver interface {
	Resolve(ctx context.Context, accountID string) models.Tier
}

// Account meters token consumption. Balances are kept per monthly period;
// an account without a stored balance starts at its tier's token budget.
type Account struct {
	store  BalanceStore
	tiers  TierResolver
	policy *config.PolicyHolder
	now    func() time.Time

	mu       sync.Mutex
	degraded map[degradedKey]int64
}

type degradedKey struct {
	account string
	period  string
}

// NewAccount creates an Account.
func NewAccount(s BalanceStore, tiers TierResolver, policy *config.PolicyHolder) *Account {
	return &Account{
		store:    s,
		tiers:    tiers,
		policy:   policy,
		now:      time.Now,
		degraded: make(map[degradedKey]int64),
	}
}

// SetClock overrides the time source.
func (a *Account) SetClock(now func() time.Time) { a.now = now }

// Period returns the current token period key.
func (a *Account) Period() string {
	return models.PeriodKey(models.WindowMonthly, a.now())
}

// Balance returns the account's balance for the current period.
func (a *Account) Balance(ctx context.Context, accountID string) models.TokenBalance {
	return a.BalanceTier(ctx, accountID, a.tiers.Resolve(ctx, accountID))
}

// BalanceTier is Balance for an already resolved tier. When the store is
// unreachable the free tier budget applies, minus what was deducted
// locally during the outage.
func (a *Account) BalanceTier(ctx context.Context, accountID string, tier models.Tier) models.TokenBalance {
	period := a.Period()
	b, ok, err := a.store.GetTokenBalance(ctx, accountID, period)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"op":         "token_balance",
		}).Warn("token balance lookup failed, applying free tier budget")
		return models.TokenBalance{
			Used:  a.degradedUsed(accountID, period),
			Limit: a.policy.Get().TokenBudget(models.TierFree),
		}
	}
	if !ok {
		return models.TokenBalance{Limit: a.policy.Get().TokenBudget(tier)}
	}
	return b
}

// Remaining returns max(0, limit-used) for the current period.
func (a *Account) Remaining(ctx context.Context, accountID string) int64 {
	return a.Balance(ctx, accountID).Remaining()
}

// Deduct adds amount to the account's used tokens. Overshooting the limit
// is allowed; only admission is capped. Non-positive amounts are no-ops.
func (a *Account) Deduct(ctx context.Context, accountID string, amount int64) models.DeductResult {
	return a.DeductTier(ctx, accountID, a.tiers.Resolve(ctx, accountID), amount)
}

// DeductTier is Deduct for an already resolved tier.
func (a *Account) DeductTier(ctx context.Context, accountID string, tier models.Tier, amount int64) models.DeductResult {
	if amount <= 0 {
		return models.DeductResult{Success: true, Balance: a.BalanceTier(ctx, accountID, tier)}
	}

	period := a.Period()
	b, err := a.store.DeductTokens(ctx, accountID, period, amount, a.policy.Get().TokenBudget(tier))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"amount":     amount,
			"period":     period,
			"op":         "token_deduct",
		}).Warn("token deduction failed")
		a.addDegraded(degradedKey{accountID, period}, amount)
		return models.DeductResult{Success: false}
	}
	return models.DeductResult{Success: true, Balance: b}
}

// SetLimit tops up or overrides the current period's limit.
func (a *Account) SetLimit(ctx context.Context, accountID string, limit int64) error {
	return a.store.SetTokenLimit(ctx, accountID, a.Period(), limit)
}

func (a *Account) degradedUsed(accountID, period string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded[degradedKey{accountID, period}]
}

// addDegraded records tokens deducted during an outage. Adding a new key
// drops the keys of earlier periods.
func (a *Account) addDegraded(k degradedKey, amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.degraded[k]; !ok {
		for old := range a.degraded {
			if old.period != k.period {
				delete(a.degraded, old)
			}
		}
	}
	a.degraded[k] += amount
}
