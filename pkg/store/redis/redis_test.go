package redis

import (
	"context"
	"os"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "kroniq:usage:acct-1:image:2026-10", usageKey("acct-1", models.ResourceImage, "2026-10"))
	assert.Equal(t, "kroniq:tokens:acct-1:2026-10", tokensKey("acct-1", "2026-10"))
	assert.Equal(t, "kroniq:tier:acct-1", tierKey("acct-1"))
}

func TestStore(t *testing.T) {
	addr := os.Getenv("KRONIQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KRONIQ_TEST_REDIS_ADDR not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := New(ctx, Options{Addr: addr, DB: 15})
		require.NoError(t, err)
		require.NoError(t, s.client.FlushDB(ctx).Err())
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
