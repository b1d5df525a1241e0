package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestCountersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.IncrementUsage(ctx, "acct-1", models.ResourceMusic, "2026-10")
	require.NoError(t, err)
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierPro))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.GetUsage(ctx, "acct-1", models.ResourceMusic, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tier, err := s.GetAccountTier(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, tier)
}

func TestClosedStoreReturnsErrors(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetUsage(context.Background(), "acct-1", models.ResourceChat, "2026-10")
	assert.Error(t, err)
	_, err = s.IncrementUsage(context.Background(), "acct-1", models.ResourceChat, "2026-10")
	assert.Error(t, err)
}
