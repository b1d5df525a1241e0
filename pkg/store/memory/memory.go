// Package memory is an in-process store.Store used by tests and
// single-instance deployments that can afford to lose counters on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
)

type usageKey struct {
	account  string
	resource models.ResourceType
	period   string
}

type balanceKey struct {
	account string
	period  string
}

// Store keeps all state in maps guarded by a single mutex.
type Store struct {
	mu       sync.Mutex
	usage    map[usageKey]int64
	balances map[balanceKey]models.TokenBalance
	tiers    map[string]models.Tier
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		usage:    make(map[usageKey]int64),
		balances: make(map[balanceKey]models.TokenBalance),
		tiers:    make(map[string]models.Tier),
	}
}

// GetUsage returns the count for one period.
func (s *Store) GetUsage(_ context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey{accountID, resource, period}], nil
}

// IncrementUsage bumps the count under the store lock.
func (s *Store) IncrementUsage(_ context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := usageKey{accountID, resource, period}
	s.usage[k]++
	return s.usage[k], nil
}

// ListUsage returns the account's counts for period sorted by resource.
func (s *Store) ListUsage(_ context.Context, accountID, period string) ([]models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UsageRecord
	for k, n := range s.usage {
		if k.account == accountID && k.period == period {
			out = append(out, models.UsageRecord{AccountID: accountID, Resource: k.resource, Period: period, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}

// GetTokenBalance returns the balance and whether it exists.
func (s *Store) GetTokenBalance(_ context.Context, accountID, period string) (models.TokenBalance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey{accountID, period}]
	return b, ok, nil
}

// DeductTokens adds amount to used, starting the balance at initialLimit.
func (s *Store) DeductTokens(_ context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := balanceKey{accountID, period}
	b, ok := s.balances[k]
	if !ok {
		b.Limit = initialLimit
	}
	b.Used += amount
	s.balances[k] = b
	return b, nil
}

// SetTokenLimit sets the limit of a period balance.
func (s *Store) SetTokenLimit(_ context.Context, accountID, period string, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := balanceKey{accountID, period}
	b := s.balances[k]
	b.Limit = limit
	s.balances[k] = b
	return nil
}

// GetAccountTier returns the tier or store.ErrNotFound.
func (s *Store) GetAccountTier(_ context.Context, accountID string) (models.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[accountID]
	if !ok {
		return "", store.ErrNotFound
	}
	return t, nil
}

// SetAccountTier sets the tier.
func (s *Store) SetAccountTier(_ context.Context, accountID string, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[accountID] = tier
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
