package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/router"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message...>",
		Short: "Classify a message into an intent and complexity class",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			c := newClassifier(opts.cfg.Intent)
			res := c.Classify(msg)
			a := complexity.New().Analyze(msg)

			action := "confirm"
			if c.ShouldAutoRoute(res) {
				action = "auto-route"
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "intent\t%s\n", res.Intent)
			fmt.Fprintf(w, "confidence\t%.2f\n", res.Confidence)
			fmt.Fprintf(w, "reasoning\t%s\n", res.Reasoning)
			fmt.Fprintf(w, "complexity\t%s\n", a.Class)
			if len(a.ComplexTerms)+len(a.SimpleTerms) > 0 {
				fmt.Fprintf(w, "signals\t%s\n", strings.Join(append(a.ComplexTerms, a.SimpleTerms...), ", "))
			}
			fmt.Fprintf(w, "action\t%s\n", action)
			return w.Flush()
		},
	}
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var tierName, resourceName, complexityName string

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show routing decisions from the active policy",
		Long:  "Without --tier and --resource, prints the complete routing table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(opts.cfg.PolicyPath)
			if err != nil {
				return err
			}
			r := router.New(config.NewPolicyHolder(policy))

			var decisions []models.RoutingDecision
			if tierName == "" && resourceName == "" {
				decisions = r.Table()
			} else {
				t, err := models.ParseTier(tierName)
				if err != nil {
					return err
				}
				res, err := models.ParseResource(resourceName)
				if err != nil {
					return err
				}
				cx, err := models.ParseComplexity(complexityName)
				if err != nil {
					return err
				}
				decisions = []models.RoutingDecision{r.Route(t, res, cx)}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tTIER\tCOMPLEXITY\tMODEL\tPROVIDER\tTOKENS\tCONSTRAINTS")
			for _, d := range decisions {
				if !d.Available {
					fmt.Fprintf(w, "%s\t%s\t%s\tunavailable\t-\t-\t-\n", d.Resource, d.Tier, d.Complexity)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					d.Resource, d.Tier, d.Complexity, d.ModelID, d.Provider, d.TokenCost, constraintsString(d.Constraints))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tierName, "tier", "", "subscription tier")
	cmd.Flags().StringVar(&resourceName, "resource", "", "resource type")
	cmd.Flags().StringVar(&complexityName, "complexity", "medium", "complexity class")
	return cmd
}

func constraintsString(c models.Constraints) string {
	var parts []string
	fields := c.Fields()
	for _, name := range []string{"max_duration_sec", "max_resolution", "max_characters", "max_slides", "max_output_tokens"} {
		if v := fields[name]; v > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, v))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
