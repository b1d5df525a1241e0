package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/logging"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/metrics"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/orchestrator"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the metering and routing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if listen != "" {
				cfg.Listen = listen
			}

			closer, err := logging.Setup(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := openEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			if cfg.WatchPolicy && cfg.PolicyPath != "" {
				w, err := config.NewWatcher(cfg.PolicyPath, eng.policy)
				if err != nil {
					return err
				}
				w.OnReload = func(ok bool) {
					status := "ok"
					if !ok {
						status = "rejected"
					}
					metrics.PolicyReloadsTotal.WithLabelValues(status).Inc()
				}
				go w.Run(ctx)
			}

			deps := orchestrator.Deps{
				Tiers:      eng.tiers,
				Ledger:     eng.ledger,
				Tokens:     eng.tokens,
				Router:     eng.router,
				Intents:    eng.intents,
				Complexity: eng.complexity,
			}

			auditor, err := openAudit(cfg)
			if err != nil {
				return err
			}
			if auditor != nil {
				defer func() { _ = auditor.Close() }()
				deps.Audit = auditor
			}

			pub, err := openPublisher(ctx, cfg.Events)
			if err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()
			deps.Events = pub

			if deps.Provider, err = openProvider(cfg.Provider); err != nil {
				return err
			}

			srv := server.New(cfg.Listen, cfg.Server, server.Deps{
				Orchestrator: orchestrator.New(deps),
				Ledger:       eng.ledger,
				Tokens:       eng.tokens,
				Router:       eng.router,
				Intents:      eng.intents,
				Complexity:   eng.complexity,
			})

			log.WithFields(log.Fields{
				"store":  cfg.Store.Driver,
				"policy": policyName(cfg.PolicyPath),
				"events": cfg.Events.Driver,
			}).Info("starting kroniq")
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func policyName(path string) string {
	if path == "" {
		return "embedded default"
	}
	return path
}
