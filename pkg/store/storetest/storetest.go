// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrency is the number of goroutines used by the stress tests.
const Concurrency = 120

// Run executes the shared suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("UsageAbsentIsZero", func(t *testing.T) { testUsageAbsentIsZero(t, newStore(t)) })
	t.Run("IncrementCreatesAndCounts", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("PeriodsAreIndependent", func(t *testing.T) { testPeriods(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("ListUsage", func(t *testing.T) { testListUsage(t, newStore(t)) })
	t.Run("TokenBalance", func(t *testing.T) { testTokenBalance(t, newStore(t)) })
	t.Run("ConcurrentDeductions", func(t *testing.T) { testConcurrentDeductions(t, newStore(t)) })
	t.Run("SetTokenLimit", func(t *testing.T) { testSetTokenLimit(t, newStore(t)) })
	t.Run("AccountTier", func(t *testing.T) { testAccountTier(t, newStore(t)) })
}

func testUsageAbsentIsZero(t *testing.T, s store.Store) {
	ctx := context.Background()
	n, err := s.GetUsage(ctx, "acct-none", models.ResourceImage, "2026-10")
	require.NoError(t, err)
	assert.Zero(t, n)

	// reading must not create a record
	recs, err := s.ListUsage(ctx, "acct-none", "2026-10")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementUsage(ctx, "acct-1", models.ResourceImage, "2026-10")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := s.GetUsage(ctx, "acct-1", models.ResourceImage, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	other, err := s.GetUsage(ctx, "acct-1", models.ResourceVideo, "2026-10")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func testPeriods(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.IncrementUsage(ctx, "acct-1", models.ResourceChat, "2026-09")
	require.NoError(t, err)
	_, err = s.IncrementUsage(ctx, "acct-1", models.ResourceChat, "2026-09")
	require.NoError(t, err)

	n, err := s.IncrementUsage(ctx, "acct-1", models.ResourceChat, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "new period starts from zero")

	old, err := s.GetUsage(ctx, "acct-1", models.ResourceChat, "2026-09")
	require.NoError(t, err)
	assert.Equal(t, int64(2), old)
}

func testConcurrentIncrements(t *testing.T, s store.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, Concurrency)
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementUsage(ctx, "acct-race", models.ResourceVideo, "2026-10"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.GetUsage(ctx, "acct-race", models.ResourceVideo, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(Concurrency), n)
}

func testListUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, r := range []models.ResourceType{models.ResourceImage, models.ResourceImage, models.ResourceVoice} {
		_, err := s.IncrementUsage(ctx, "acct-1", r, "2026-10")
		require.NoError(t, err)
	}
	_, err := s.IncrementUsage(ctx, "acct-2", models.ResourceImage, "2026-10")
	require.NoError(t, err)

	recs, err := s.ListUsage(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	got := map[models.ResourceType]int64{}
	for _, r := range recs {
		assert.Equal(t, "acct-1", r.AccountID)
		assert.Equal(t, "2026-10", r.Period)
		got[r.Resource] = r.Count
	}
	assert.Equal(t, map[models.ResourceType]int64{models.ResourceImage: 2, models.ResourceVoice: 1}, got)
}

func testTokenBalance(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, ok, err := s.GetTokenBalance(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := s.DeductTokens(ctx, "acct-1", "2026-10", 219900, 220000)
	require.NoError(t, err)
	assert.Equal(t, models.TokenBalance{Used: 219900, Limit: 220000}, b)

	// overshoot is recorded, the limit argument only applies on creation
	b, err = s.DeductTokens(ctx, "acct-1", "2026-10", 500, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TokenBalance{Used: 220400, Limit: 220000}, b)
	assert.Zero(t, b.Remaining())

	got, ok, err := s.GetTokenBalance(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b, got)
}

func testConcurrentDeductions(t *testing.T, s store.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.DeductTokens(ctx, "acct-race", "2026-10", 10, 1000)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, ok, err := s.GetTokenBalance(ctx, "acct-race", "2026-10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(Concurrency*10), b.Used)
	assert.Equal(t, int64(1000), b.Limit)
}

func testSetTokenLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SetTokenLimit(ctx, "acct-1", "2026-10", 5000))
	b, ok, err := s.GetTokenBalance(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TokenBalance{Used: 0, Limit: 5000}, b)

	_, err = s.DeductTokens(ctx, "acct-1", "2026-10", 4000, 1)
	require.NoError(t, err)
	require.NoError(t, s.SetTokenLimit(ctx, "acct-1", "2026-10", 9000))

	b, _, err = s.GetTokenBalance(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, models.TokenBalance{Used: 4000, Limit: 9000}, b, "top-up keeps used")
}

func testAccountTier(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetAccountTier(ctx, "acct-unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, tier := range []models.Tier{models.TierStarter, models.TierPremium} {
		require.NoError(t, s.SetAccountTier(ctx, "acct-1", tier))
		got, err := s.GetAccountTier(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, tier, got, fmt.Sprintf("after setting %s", tier))
	}
}
