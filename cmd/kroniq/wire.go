package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/audit"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/events"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/intent"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/provider"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/quota"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/router"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/memory"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/postgres"
	redisstore "github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/redis"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/sqlite"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tier"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tokens"
)

// engine bundles the metering components that share one store and policy.
type engine struct {
	store      store.Store
	policy     *config.PolicyHolder
	tiers      *tier.Resolver
	ledger     *quota.Ledger
	tokens     *tokens.Account
	router     *router.Router
	intents    *intent.Classifier
	complexity *complexity.Analyzer
}

func newEngine(cfg *config.Config, st store.Store, policy *config.PolicyHolder) *engine {
	resolver := tier.NewResolver(st)
	return &engine{
		store:      st,
		policy:     policy,
		tiers:      resolver,
		ledger:     quota.NewLedger(st, resolver, policy),
		tokens:     tokens.NewAccount(st, resolver, policy),
		router:     router.New(policy),
		intents:    newClassifier(cfg.Intent),
		complexity: complexity.New(),
	}
}

func newClassifier(cfg config.IntentConfig) *intent.Classifier {
	opts := []intent.Option{intent.WithConfirmIntents(cfg.ConfirmIntents...)}
	if cfg.ConfirmThreshold > 0 {
		opts = append(opts, intent.WithThreshold(cfg.ConfirmThreshold))
	}
	return intent.New(opts...)
}

// openEngine loads the policy, opens the configured store and wires the
// engine. The caller must close the returned store.
func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, st, config.NewPolicyHolder(policy)), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	case "sqlite", "":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "pubsub":
		p, err := events.NewPubSubPublisher(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		return p, nil
	case "none":
		return events.Nop{}, nil
	default:
		return events.LogPublisher{}, nil
	}
}

func openProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	if cfg.Mock || cfg.URL == "" {
		if !cfg.Mock {
			log.Warn("provider.url is empty, using the mock provider")
		}
		return &provider.Mock{}, nil
	}
	p, err := provider.NewHTTP(cfg.URL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}
	return p, nil
}

// openAudit returns nil when audit logging is disabled.
func openAudit(cfg *config.Config) (*audit.Logger, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, nil
}
