package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/logging"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start KroniQ as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
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

			deps := mcp.Deps{
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

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
