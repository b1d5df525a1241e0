// Package postgres implements store.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements store.Store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, applies pending migrations and returns a Store.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// GetUsage returns the generation count for one period, 0 when no row exists.
func (s *Store) GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM usage_counters WHERE account_id = $1 AND resource = $2 AND period = $3`,
		accountID, string(resource), period,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

// IncrementUsage upserts the usage row with ON CONFLICT and returns the
// new count.
func (s *Store) IncrementUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (account_id, resource, period, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (account_id, resource, period)
		DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
		RETURNING count`,
		accountID, string(resource), period,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

// ListUsage returns every usage row of an account for one period.
func (s *Store) ListUsage(ctx context.Context, accountID, period string) ([]models.UsageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT resource, count FROM usage_counters WHERE account_id = $1 AND period = $2 ORDER BY resource`,
		accountID, period,
	)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []models.UsageRecord
	for rows.Next() {
		rec := models.UsageRecord{AccountID: accountID, Period: period}
		var res string
		if err := rows.Scan(&res, &rec.Count); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		rec.Resource = models.ResourceType(res)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetTokenBalance returns the balance row for a period; the bool reports
// whether it exists.
func (s *Store) GetTokenBalance(ctx context.Context, accountID, period string) (models.TokenBalance, bool, error) {
	var b models.TokenBalance
	err := s.pool.QueryRow(ctx,
		`SELECT used, token_limit FROM token_balances WHERE account_id = $1 AND period = $2`,
		accountID, period,
	).Scan(&b.Used, &b.Limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TokenBalance{}, false, nil
	}
	if err != nil {
		return models.TokenBalance{}, false, fmt.Errorf("get token balance: %w", err)
	}
	return b, true, nil
}

// DeductTokens adds amount to used in one statement, creating the row at
// initialLimit when the period has none.
func (s *Store) DeductTokens(ctx context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error) {
	var b models.TokenBalance
	err := s.pool.QueryRow(ctx, `
		INSERT INTO token_balances (account_id, period, used, token_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, period)
		DO UPDATE SET used = token_balances.used + EXCLUDED.used, updated_at = now()
		RETURNING used, token_limit`,
		accountID, period, amount, initialLimit,
	).Scan(&b.Used, &b.Limit)
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("deduct tokens: %w", err)
	}
	return b, nil
}

// SetTokenLimit sets the period limit without touching used.
func (s *Store) SetTokenLimit(ctx context.Context, accountID, period string, limit int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_balances (account_id, period, used, token_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (account_id, period)
		DO UPDATE SET token_limit = EXCLUDED.token_limit, updated_at = now()`,
		accountID, period, limit,
	)
	if err != nil {
		return fmt.Errorf("set token limit: %w", err)
	}
	return nil
}

// GetAccountTier returns the stored tier or store.ErrNotFound.
func (s *Store) GetAccountTier(ctx context.Context, accountID string) (models.Tier, error) {
	var tier string
	err := s.pool.QueryRow(ctx, `SELECT tier FROM accounts WHERE account_id = $1`, accountID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get account tier: %w", err)
	}
	return models.Tier(tier), nil
}

// SetAccountTier upserts the account's tier.
func (s *Store) SetAccountTier(ctx context.Context, accountID string, tier models.Tier) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (account_id, tier) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()`,
		accountID, string(tier),
	)
	if err != nil {
		return fmt.Errorf("set account tier: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ store.Store = (*Store)(nil)
