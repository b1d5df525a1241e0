package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	dsn := os.Getenv("KRONIQ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KRONIQ_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := New(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE usage_counters, token_balances, accounts`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
