package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/memory"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type downStore struct{}

func (downStore) GetUsage(context.Context, string, models.ResourceType, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func (downStore) IncrementUsage(context.Context, string, models.ResourceType, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func (downStore) ListUsage(context.Context, string, string) ([]models.UsageRecord, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// countingStore counts the reads Status makes.
type countingStore struct {
	*memory.Store
	gets, lists int
}

func (c *countingStore) GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	c.gets++
	return c.Store.GetUsage(ctx, accountID, resource, period)
}

func (c *countingStore) ListUsage(ctx context.Context, accountID, period string) ([]models.UsageRecord, error) {
	c.lists++
	return c.Store.ListUsage(ctx, accountID, period)
}

func newTestLedger(t *testing.T, p *config.Policy) (*Ledger, *memory.Store) {
	t.Helper()
	if p == nil {
		p = config.DefaultPolicy()
	}
	s := memory.New()
	l := NewLedger(s, tier.NewResolver(s), config.NewPolicyHolder(p))
	l.SetClock(func() time.Time { return testNow })
	return l, s
}

func TestCheckAllowed(t *testing.T) {
	l, s := newTestLedger(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierPro))

	res := l.Check(ctx, "acct-1", models.ResourceImage)
	assert.True(t, res.Allowed)
	assert.Equal(t, models.TierPro, res.Tier)
	assert.Equal(t, int64(0), res.Current)
	assert.Equal(t, int64(150), res.Limit)
	assert.Equal(t, "150 of 150 image generations remaining this month.", res.Message)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), res.ResetAt)
}

func TestCheckLimitReached(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	require.True(t, l.Increment(ctx, "acct-free", models.ResourceImage))
	require.True(t, l.Increment(ctx, "acct-free", models.ResourceImage))

	res := l.Check(ctx, "acct-free", models.ResourceImage)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(2), res.Current)
	assert.Equal(t, int64(2), res.Limit)
	assert.Equal(t, models.TierFree, res.Tier)
	assert.Contains(t, res.Message, "reached your monthly image limit (2/2)")
	assert.Zero(t, res.Remaining())
}

func TestCheckZeroLimitNeverAllowed(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := l.Check(ctx, "acct-free", models.ResourceVideo)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Limit)
		assert.Equal(t, "Video generation is not available on the Free plan.", res.Message)
		// increments past a zero limit still must not unlock anything
		l.Increment(ctx, "acct-free", models.ResourceVideo)
	}
}

func TestCheckIsReadOnly(t *testing.T) {
	l, s := newTestLedger(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Check(ctx, "acct-1", models.ResourceChat)
	}
	l.Status(ctx, "acct-1")

	recs, err := s.ListUsage(ctx, "acct-1", "2026-10")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestConcurrentIncrements(t *testing.T) {
	l, s := newTestLedger(t, nil)
	ctx := context.Background()

	const n = 150
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, l.Increment(ctx, "acct-1", models.ResourceChat))
		}()
	}
	wg.Wait()

	got, err := s.GetUsage(ctx, "acct-1", models.ResourceChat, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got)
}

func TestPeriodRollover(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	l.Increment(ctx, "acct-free", models.ResourceImage)
	l.Increment(ctx, "acct-free", models.ResourceImage)
	require.False(t, l.Check(ctx, "acct-free", models.ResourceImage).Allowed)

	l.SetClock(func() time.Time { return time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC) })
	res := l.Check(ctx, "acct-free", models.ResourceImage)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.Current)
}

func TestDailyWindow(t *testing.T) {
	p := config.DefaultPolicy()
	p.Windows[models.ResourceChat] = models.WindowDaily
	l, s := newTestLedger(t, p)
	ctx := context.Background()

	require.True(t, l.Increment(ctx, "acct-1", models.ResourceChat))
	n, err := s.GetUsage(ctx, "acct-1", models.ResourceChat, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res := l.Check(ctx, "acct-1", models.ResourceChat)
	assert.Equal(t, models.WindowDaily, res.Window)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), res.ResetAt)
	assert.Contains(t, res.Message, "this day")
}

func TestStoreDownUsesFallbackLimits(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierPremium))

	l := NewLedger(downStore{}, tier.NewResolver(s), config.NewPolicyHolder(config.DefaultPolicy()))
	l.SetClock(func() time.Time { return testNow })

	res := l.Check(ctx, "acct-1", models.ResourceImage)
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
	assert.Equal(t, models.TierFree, res.Tier)
	assert.Equal(t, FallbackLimits[models.ResourceImage], res.Limit)

	assert.False(t, l.Increment(ctx, "acct-1", models.ResourceImage))

	res = l.Check(ctx, "acct-1", models.ResourceImage)
	assert.False(t, res.Allowed, "outage must not grant unlimited access")
	assert.Equal(t, int64(1), res.Current)

	assert.False(t, l.Check(ctx, "acct-1", models.ResourceVideo).Allowed)
}

func TestFallbackLimitsWithinDefaultFreeTier(t *testing.T) {
	p := config.DefaultPolicy()
	for _, r := range models.AllResources {
		assert.LessOrEqual(t, FallbackLimits[r], p.Limit(models.TierFree, r), r)
	}
}

func TestStatus(t *testing.T) {
	l, s := newTestLedger(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierStarter))
	l.Increment(ctx, "acct-1", models.ResourceMusic)

	status := l.Status(ctx, "acct-1")
	require.Len(t, status, len(models.AllResources))
	for i, r := range models.AllResources {
		assert.Equal(t, r, status[i].Resource)
		assert.Equal(t, models.TierStarter, status[i].Tier)
	}
	assert.Equal(t, int64(1), status[3].Current)
}

func TestStatusListsOncePerPeriod(t *testing.T) {
	p := config.DefaultPolicy()
	p.Windows[models.ResourceChat] = models.WindowDaily
	s := &countingStore{Store: memory.New()}
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierPro))

	l := NewLedger(s, tier.NewResolver(s), config.NewPolicyHolder(p))
	l.SetClock(func() time.Time { return testNow })
	require.True(t, l.Increment(ctx, "acct-1", models.ResourceChat))
	require.True(t, l.Increment(ctx, "acct-1", models.ResourceImage))
	require.True(t, l.Increment(ctx, "acct-1", models.ResourceImage))

	status := l.Status(ctx, "acct-1")
	assert.Zero(t, s.gets)
	assert.Equal(t, 2, s.lists)
	assert.Equal(t, int64(1), status[0].Current)
	assert.Equal(t, models.WindowDaily, status[0].Window)
	assert.Equal(t, int64(2), status[1].Current)
	assert.Zero(t, status[2].Current)
	assert.Equal(t, models.TierPro, status[1].Tier)
}

func TestStatusStoreDown(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	l := NewLedger(downStore{}, tier.NewResolver(s), config.NewPolicyHolder(config.DefaultPolicy()))
	l.SetClock(func() time.Time { return testNow })

	for _, res := range l.Status(ctx, "acct-1") {
		assert.True(t, res.Degraded, res.Resource)
		assert.Equal(t, FallbackLimits[res.Resource], res.Limit, res.Resource)
	}
}

func TestDegradedCountersDropEndedPeriods(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	l := NewLedger(downStore{}, tier.NewResolver(s), config.NewPolicyHolder(config.DefaultPolicy()))
	l.SetClock(func() time.Time { return testNow })

	l.Increment(ctx, "acct-1", models.ResourceChat)
	l.Increment(ctx, "acct-2", models.ResourceImage)
	require.Len(t, l.degraded, 2)

	l.SetClock(func() time.Time { return time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC) })
	l.Increment(ctx, "acct-1", models.ResourceChat)

	assert.Len(t, l.degraded, 1)
	assert.Equal(t, int64(1), l.Check(ctx, "acct-1", models.ResourceChat).Current)
}
