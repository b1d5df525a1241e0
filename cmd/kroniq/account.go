package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var (
		account string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show quota usage and token balance for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				return fmt.Errorf("--account is required")
			}
			ctx := context.Background()
			eng, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			quotas := eng.ledger.Status(ctx, account)
			tier := eng.tiers.Resolve(ctx, account)
			bal := eng.tokens.BalanceTier(ctx, account, tier)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"account_id": account,
					"tier":       tier,
					"quotas":     quotas,
					"tokens":     bal,
				})
			}

			fmt.Fprintf(out, "Account %s (%s plan)\n\n", account, tier.DisplayName())
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tWINDOW\tUSED\tLIMIT\tREMAINING\tRESETS")
			for _, q := range quotas {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					q.Resource, q.Window, q.Current, q.Limit, q.Remaining(), q.ResetAt.Format("2006-01-02"))
			}
			fmt.Fprintf(w, "tokens\tmonthly\t%d\t%d\t%d\t\n", bal.Used, bal.Limit, bal.Remaining())
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTokensCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect and top up token balances",
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show the current period's token balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			b := eng.tokens.Balance(ctx, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d used, %d remaining (%s)\n",
				args[0], b.Used, b.Limit, b.Remaining(), eng.tokens.Period())
			return nil
		},
	}

	setLimitCmd := &cobra.Command{
		Use:   "set-limit <account> <limit>",
		Short: "Set the current period's token limit for an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || limit < 0 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			ctx := context.Background()
			eng, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			if err := eng.tokens.SetLimit(ctx, args[0], limit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token limit for %s set to %d for %s.\n", args[0], limit, eng.tokens.Period())
			return nil
		},
	}

	cmd.AddCommand(balanceCmd, setLimitCmd)
	return cmd
}

func newTierCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Read or assign an account's subscription tier",
	}

	getCmd := &cobra.Command{
		Use:   "get <account>",
		Short: "Show the effective tier of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			t := eng.tiers.Resolve(ctx, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", args[0], t, t.DisplayName())
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <account> <tier>",
		Short: "Assign a tier to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseTier(args[1])
			if err != nil {
				return err
			}
			ctx := context.Background()
			eng, err := openEngine(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.store.Close() }()

			if err := eng.store.SetAccountTier(ctx, args[0], t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now on the %s plan.\n", args[0], t.DisplayName())
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
