// Package redis implements store.Store on Redis. Counters use INCR and the
// token deduction runs as a Lua script so both are atomic server side.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
)

const keyPrefix = "kroniq"

// counterTTL keeps old periods around long enough for yearly reporting.
const counterTTL = 400 * 24 * time.Hour

var deductScript = goredis.NewScript(`
redis.call('HSETNX', KEYS[1], 'limit', ARGV[2])
local used = redis.call('HINCRBY', KEYS[1], 'used', ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
local limit = redis.call('HGET', KEYS[1], 'limit')
return {used, tonumber(limit)}
`)

// Store implements store.Store over a go-redis client.
type Store struct {
	client *goredis.Client
}

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

func usageKey(accountID string, resource models.ResourceType, period string) string {
	return fmt.Sprintf("%s:usage:%s:%s:%s", keyPrefix, accountID, resource, period)
}

func tokensKey(accountID, period string) string {
	return fmt.Sprintf("%s:tokens:%s:%s", keyPrefix, accountID, period)
}

func tierKey(accountID string) string {
	return fmt.Sprintf("%s:tier:%s", keyPrefix, accountID)
}

// GetUsage reads the period counter; a missing key counts as 0.
func (s *Store) GetUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	n, err := s.client.Get(ctx, usageKey(accountID, resource, period)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

// IncrementUsage runs INCR on the period counter and refreshes its TTL.
func (s *Store) IncrementUsage(ctx context.Context, accountID string, resource models.ResourceType, period string) (int64, error) {
	key := usageKey(accountID, resource, period)
	var incr *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return incr.Val(), nil
}

// ListUsage reads the counters of every resource type for one period.
func (s *Store) ListUsage(ctx context.Context, accountID, period string) ([]models.UsageRecord, error) {
	keys := make([]string, len(models.AllResources))
	for i, r := range models.AllResources {
		keys[i] = usageKey(accountID, r, period)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	var out []models.UsageRecord
	for i, v := range vals {
		if v == nil {
			continue
		}
		n, err := parseInt(v)
		if err != nil {
			return nil, fmt.Errorf("list usage %s: %w", keys[i], err)
		}
		out = append(out, models.UsageRecord{
			AccountID: accountID,
			Resource:  models.AllResources[i],
			Period:    period,
			Count:     n,
		})
	}
	return out, nil
}

// GetTokenBalance reads the balance hash of a period. The bool is false
// when the hash does not exist.
func (s *Store) GetTokenBalance(ctx context.Context, accountID, period string) (models.TokenBalance, bool, error) {
	vals, err := s.client.HMGet(ctx, tokensKey(accountID, period), "used", "limit").Result()
	if err != nil {
		return models.TokenBalance{}, false, fmt.Errorf("get token balance: %w", err)
	}
	if vals[0] == nil && vals[1] == nil {
		return models.TokenBalance{}, false, nil
	}
	var b models.TokenBalance
	if vals[0] != nil {
		if b.Used, err = parseInt(vals[0]); err != nil {
			return models.TokenBalance{}, false, fmt.Errorf("get token balance: %w", err)
		}
	}
	if vals[1] != nil {
		if b.Limit, err = parseInt(vals[1]); err != nil {
			return models.TokenBalance{}, false, fmt.Errorf("get token balance: %w", err)
		}
	}
	return b, true, nil
}

// DeductTokens runs the deduct script, which creates the balance at
// initialLimit when absent and adds amount to used.
func (s *Store) DeductTokens(ctx context.Context, accountID, period string, amount, initialLimit int64) (models.TokenBalance, error) {
	res, err := deductScript.Run(ctx, s.client,
		[]string{tokensKey(accountID, period)},
		amount, initialLimit, int64(counterTTL/time.Second),
	).Int64Slice()
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("deduct tokens: %w", err)
	}
	if len(res) != 2 {
		return models.TokenBalance{}, fmt.Errorf("deduct tokens: unexpected reply %v", res)
	}
	return models.TokenBalance{Used: res[0], Limit: res[1]}, nil
}

// SetTokenLimit writes the limit field of the balance hash.
func (s *Store) SetTokenLimit(ctx context.Context, accountID, period string, limit int64) error {
	key := tokensKey(accountID, period)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, "limit", limit)
		pipe.HSetNX(ctx, key, "used", 0)
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set token limit: %w", err)
	}
	return nil
}

// GetAccountTier returns the stored tier or store.ErrNotFound.
func (s *Store) GetAccountTier(ctx context.Context, accountID string) (models.Tier, error) {
	v, err := s.client.Get(ctx, tierKey(accountID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get account tier: %w", err)
	}
	return models.Tier(v), nil
}

// SetAccountTier stores the tier without expiry.
func (s *Store) SetAccountTier(ctx context.Context, accountID string, tier models.Tier) error {
	if err := s.client.Set(ctx, tierKey(accountID), string(tier), 0).Err(); err != nil {
		return fmt.Errorf("set account tier: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func parseInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseInt(x, 10, 64)
	case int64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

var _ store.Store = (*Store)(nil)
