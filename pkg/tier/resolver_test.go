package tier

import (
	"context"
	"errors"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) GetAccountTier(context.Context, string) (models.Tier, error) {
	return "", errors.New("connection refused")
}

func TestResolveStoredTier(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.TierPro))

	assert.Equal(t, models.TierPro, NewResolver(s).Resolve(ctx, "acct-1"))
}

func TestResolveUnknownAccountIsFree(t *testing.T) {
	assert.Equal(t, models.TierFree, NewResolver(memory.New()).Resolve(context.Background(), "nobody"))
}

func TestResolveFailureIsFree(t *testing.T) {
	assert.Equal(t, models.TierFree, NewResolver(failingSource{}).Resolve(context.Background(), "acct-1"))
}

func TestResolveInvalidStoredTierIsFree(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.SetAccountTier(ctx, "acct-1", models.Tier("platinum")))

	assert.Equal(t, models.TierFree, NewResolver(s).Resolve(ctx, "acct-1"))
}
