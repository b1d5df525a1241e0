// Package audit keeps a queryable trail of every orchestrated generation
// request in a dedicated SQLite database.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Logger writes and queries generation entries.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit database, creates the schema and starts the
// retention loop.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS generation_log (
		request_id     TEXT PRIMARY KEY,
		account_hash   TEXT NOT NULL,
		account_prefix TEXT NOT NULL,
		resource       TEXT NOT NULL,
		tier           TEXT NOT NULL,
		complexity     TEXT,
		model          TEXT,
		outcome        TEXT NOT NULL,
		message        TEXT,
		tokens         INTEGER NOT NULL DEFAULT 0,
		latency_ms     INTEGER NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generation_created ON generation_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_generation_prefix ON generation_log(account_prefix);
	CREATE INDEX IF NOT EXISTS idx_generation_outcome ON generation_log(outcome)`)
	return err
}

// Log inserts an entry. A nil Logger discards entries.
func (l *Logger) Log(ctx context.Context, e models.GenerationEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generation_log
		(request_id, account_hash, account_prefix, resource, tier, complexity,
		 model, outcome, message, tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.AccountHash, e.AccountPrefix, string(e.Resource), string(e.Tier),
		string(e.Complexity), e.ModelID, e.Outcome, e.Message, e.Tokens, e.LatencyMs,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("log generation: %w", err)
	}
	return nil
}

// Query returns entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.GenerationEntry, error) {
	q := `SELECT request_id, account_hash, account_prefix, resource, tier, complexity,
		model, outcome, message, tokens, latency_ms, created_at
		FROM generation_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.AccountPrefix != "" {
		q += " AND account_prefix = ?"
		args = append(args, opts.AccountPrefix)
	}
	if opts.Resource != "" {
		q += " AND resource = ?"
		args = append(args, string(opts.Resource))
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.GenerationEntry
	for rows.Next() {
		var e models.GenerationEntry
		var resource, tier string
		var complexity, model, message sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.AccountHash, &e.AccountPrefix, &resource, &tier, &complexity,
			&model, &e.Outcome, &message, &e.Tokens, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Resource = models.ResourceType(resource)
		e.Tier = models.Tier(tier)
		e.Complexity = models.ComplexityClass(complexity.String)
		e.ModelID = model.String
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts grouped by resource, outcome and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT resource, outcome, date(created_at) AS day, count(*) AS cnt
		 FROM generation_log GROUP BY resource, outcome, day
		 ORDER BY day DESC, resource, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var resource string
		var day sql.NullString
		if err := rows.Scan(&resource, &s.Outcome, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Resource = models.ResourceType(resource)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx, `DELETE FROM generation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashAccount returns the SHA-256 hex hash and an 8-char prefix of an
// account ID, so raw IDs never land in the audit database.
func HashAccount(accountID string) (hash, prefix string) {
	h := sha256.Sum256([]byte(accountID))
	hash = hex.EncodeToString(h[:])
	return hash, hash[:8]
}
