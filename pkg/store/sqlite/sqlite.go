// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
)

// Store implements store.Store with a SQLite database.
type Store struct {
	db *sql.DB
}

const createTables = `
CREATE TABLE IF NOT EXISTS usage_counters (
	account_id TEXT NOT NULL,
	resource TEXT NOT NULL,
	period TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_id, resource, period)
);
CREATE TABLE IF NOT EXISTS token_balances (
	account_id TEXT NOT NULL,
	period TEXT NOT NULL,
	used INTEGER NOT NULL DEFAULT 0,
	token_limit INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_id, period)
);
CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	tier TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens (or creates) the database at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// SQLite allows one writer; a single connection serialises upserts
	// instead of surfacing SQLITE_BUSY under concurrent increments.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// GetUsage returns the generation count for one period, 0 when no row exists.
func (s *Store) GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE account_id = ? AND resource = ? AND period = ?`,
		accountID, string(resource), period,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

// IncrementUsage creates or bumps the usage row in a single upsert and
// returns the new count.
func (s *Store) IncrementUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (account_id, resource, period, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (account_id, resource, period)
		DO UPDATE SET count = count + 1, updated_at = CURRENT_TIMESTAMP
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource, count FROM usage_counters WHERE account_id = ? AND period = ? ORDER BY resource`,
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

// GetTokenBalance returns the balance row for a period. The bool is false
// when the account has no balance yet.
func (s *Store) GetTokenBalance(ctx context.Context, accountID, period string) (models.TokenBalance, bool, error) {
	var b models.TokenBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT used, token_limit FROM token_balances WHERE account_id = ? AND period = ?`,
		accountID, period,
	).Scan(&b.Used, &b.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TokenBalance{}, false, nil
	}
	if err != nil {
		return models.TokenBalance{}, false, fmt.Errorf("get token balance: %w", err)
	}
	return b, true, nil
}

// DeductTokens adds amount to used, creating the row at initialLimit first,
// in a single upsert.
func (s *Store) DeductTokens(ctx context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error) {
	var b models.TokenBalance
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO token_balances (account_id, period, used, token_limit)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, period)
		DO UPDATE SET used = used + excluded.used, updated_at = CURRENT_TIMESTAMP
		RETURNING used, token_limit`,
		accountID, period, amount, initialLimit,
	).Scan(&b.Used, &b.Limit)
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("deduct tokens: %w", err)
	}
	return b, nil
}

// SetTokenLimit sets the period limit, keeping what was already used.
func (s *Store) SetTokenLimit(ctx context.Context, accountID, period string, limit int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_balances (account_id, period, used, token_limit)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (account_id, period)
		DO UPDATE SET token_limit = excluded.token_limit, updated_at = CURRENT_TIMESTAMP`,
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
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM accounts WHERE account_id = ?`, accountID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get account tier: %w", err)
	}
	return models.Tier(tier), nil
}

// SetAccountTier stores or replaces the account's tier.
func (s *Store) SetAccountTier(ctx context.Context, accountID string, tier models.Tier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, tier) VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET tier = excluded.tier, updated_at = CURRENT_TIMESTAMP`,
		accountID, string(tier),
	)
	if err != nil {
		return fmt.Errorf("set account tier: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
