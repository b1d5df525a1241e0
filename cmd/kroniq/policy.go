package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
)

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate and inspect tier policies",
	}

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a policy file for completeness and tier monotonicity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.PolicyPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := config.LoadPolicy(path); err != nil {
				if errors.Is(err, config.ErrInvalidPolicy) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return fmt.Errorf("policy %s is invalid", policyName(path))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy %s is valid.\n", policyName(path))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.PolicyPath == "" {
				_, err := cmd.OutOrStdout().Write(config.DefaultPolicyYAML())
				return err
			}
			p, err := config.LoadPolicy(opts.cfg.PolicyPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(p); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(validateCmd, showCmd)
	return cmd
}
