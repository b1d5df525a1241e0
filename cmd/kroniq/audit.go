package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/audit"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the generation audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(opts),
		newAuditShowCmd(opts),
		newAuditStatsCmd(opts),
		newAuditCleanupCmd(opts),
	)
	return cmd
}

func newAuditSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		account  string
		resource string
		outcome  string
		since    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := models.AuditQueryOpts{Outcome: outcome, Limit: limit}
			if account != "" {
				_, q.AccountPrefix = audit.HashAccount(account)
			}
			if resource != "" {
				r, err := models.ParseResource(resource)
				if err != nil {
					return err
				}
				q.Resource = r
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				q.Since = t
			}

			l, cleanup, err := openAuditLogger(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), q)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tREQUEST ID\tACCOUNT\tRESOURCE\tTIER\tMODEL\tOUTCOME\tTOKENS\tLATENCY")
			for _, e := range entries {
				model := e.ModelID
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%dms\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.RequestID, e.AccountPrefix,
					e.Resource, e.Tier, model, e.Outcome, e.Tokens, e.LatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "filter by account ID")
	cmd.Flags().StringVar(&resource, "resource", "", "filter by resource type")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newAuditShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a single audit entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{RequestID: args[0], Limit: 1})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entry found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Fprintf(out, "Request ID:  %s\n", e.RequestID)
			fmt.Fprintf(out, "Account:     %s\n", e.AccountHash)
			fmt.Fprintf(out, "Resource:    %s\n", e.Resource)
			fmt.Fprintf(out, "Tier:        %s\n", e.Tier)
			fmt.Fprintf(out, "Complexity:  %s\n", e.Complexity)
			fmt.Fprintf(out, "Model:       %s\n", e.ModelID)
			fmt.Fprintf(out, "Outcome:     %s\n", e.Outcome)
			fmt.Fprintf(out, "Message:     %s\n", e.Message)
			fmt.Fprintf(out, "Tokens:      %d\n", e.Tokens)
			fmt.Fprintf(out, "Latency:     %dms\n", e.LatencyMs)
			fmt.Fprintf(out, "Time:        %s\n", e.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newAuditStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show generation counts by day, resource and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit stats found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tRESOURCE\tOUTCOME\tCOUNT")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Day, s.Resource, s.Outcome, s.Count)
			}
			return w.Flush()
		},
	}
}

func newAuditCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries.\n", deleted)
			return nil
		},
	}
}

func openAuditLogger(opts *rootOptions) (*audit.Logger, func(), error) {
	if !opts.cfg.Audit.Enabled {
		return nil, nil, fmt.Errorf("audit logging is disabled in the config")
	}
	l, err := openAudit(opts.cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}
