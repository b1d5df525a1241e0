// Package store defines the persistence layer of the metering engine.
//
// Every mutation of shared counters goes through the atomic primitives of
// Store. Implementations must never emulate IncrementUsage or DeductTokens
// with a separate read and write.
package store

import (
	"context"
	"errors"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// ErrNotFound is returned when an account has no stored state.
var ErrNotFound = errors.New("not found")

// Store persists usage counters, token balances and account tiers.
type Store interface {
	// GetUsage returns the count for the key, or 0 when no record exists.
	GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error)
	// IncrementUsage atomically adds one to the count, creating the record
	// if absent, and returns the new count.
	IncrementUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error)
	// ListUsage returns every usage record of an account for a period.
	ListUsage(ctx context.Context, accountID, period string) ([]models.UsageRecord, error)
	// GetTokenBalance returns the balance for a period. The bool is false
	// when no balance row exists yet.
	GetTokenBalance(ctx context.Context, accountID, period string) (models.TokenBalance, bool, error)
	// DeductTokens atomically adds amount to used. A missing row is created
	// with initialLimit as its limit.
	DeductTokens(ctx context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error)
	// SetTokenLimit sets the limit of a period's balance, creating it if absent.
	SetTokenLimit(ctx context.Context, accountID, period string, limit int64) error
	// GetAccountTier returns ErrNotFound for unknown accounts.
	GetAccountTier(ctx context.Context, accountID string) (models.Tier, error)
	SetAccountTier(ctx context.Context, accountID string, tier models.Tier) error
	Close() error
}
