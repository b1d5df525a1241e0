package mcp

import (
	"fmt"
	"strings"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

func formatUsage(accountID string, tier models.Tier, quotas []models.QuotaCheckResult, bal models.TokenBalance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %s on the %s plan\n\n", accountID, tier.DisplayName())
	fmt.Fprintf(&b, "%-14s %8s %8s %10s  %s\n", "Resource", "Used", "Limit", "Remaining", "Resets")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, q := range quotas {
		fmt.Fprintf(&b, "%-14s %8d %8d %10d  %s\n",
			q.Resource, q.Current, q.Limit, q.Remaining(), q.ResetAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "\nTokens: %d of %d used, %d remaining\n", bal.Used, bal.Limit, bal.Remaining())
	if len(quotas) > 0 && quotas[0].Degraded {
		b.WriteString("Note: the usage store is unreachable; showing fallback limits.\n")
	}
	return b.String()
}

func formatClassification(res models.IntentResult, autoRoute bool, a complexity.Analysis) string {
	action := "confirm with the user first"
	if autoRoute {
		action = "route automatically"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Intent:     %s (confidence %.2f)\n", res.Intent, res.Confidence)
	fmt.Fprintf(&b, "Reasoning:  %s\n", res.Reasoning)
	fmt.Fprintf(&b, "Complexity: %s (%d chars)\n", a.Class, a.Length)
	if len(a.ComplexTerms) > 0 {
		fmt.Fprintf(&b, "  complex terms: %s\n", strings.Join(a.ComplexTerms, ", "))
	}
	if len(a.SimpleTerms) > 0 {
		fmt.Fprintf(&b, "  simple terms:  %s\n", strings.Join(a.SimpleTerms, ", "))
	}
	fmt.Fprintf(&b, "Action:     %s\n", action)
	return b.String()
}

func formatRoutes(decisions []models.RoutingDecision) string {
	if len(decisions) == 0 {
		return "No routes found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-13s %-15s %-8s %-22s %-11s %8s  %s\n",
		"Resource", "Tier", "Class", "Model", "Provider", "Tokens", "Constraints")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, d := range decisions {
		if !d.Available {
			fmt.Fprintf(&b, "%-13s %-15s %-8s %s\n", d.Resource, d.Tier, d.Complexity, "(unavailable)")
			continue
		}
		fmt.Fprintf(&b, "%-13s %-15s %-8s %-22s %-11s %8d  %s\n",
			d.Resource, d.Tier, d.Complexity, d.ModelID, d.Provider, d.TokenCost, formatConstraints(d.Constraints))
	}
	return b.String()
}

func formatConstraints(c models.Constraints) string {
	var parts []string
	if c.MaxDurationSec > 0 {
		parts = append(parts, fmt.Sprintf("%ds", c.MaxDurationSec))
	}
	if c.MaxResolution > 0 {
		parts = append(parts, fmt.Sprintf("%dpx", c.MaxResolution))
	}
	if c.MaxCharacters > 0 {
		parts = append(parts, fmt.Sprintf("%d chars", c.MaxCharacters))
	}
	if c.MaxSlides > 0 {
		parts = append(parts, fmt.Sprintf("%d slides", c.MaxSlides))
	}
	if c.MaxOutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d out", c.MaxOutputTokens))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func formatAuditEntries(entries []models.GenerationEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-36s %-8s %-13s %-15s %-20s %-18s %7s\n",
		"Time", "Request ID", "Account", "Resource", "Tier", "Model", "Outcome", "Tokens")
	b.WriteString(strings.Repeat("-", 145) + "\n")
	for _, e := range entries {
		model := e.ModelID
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(&b, "%-20s %-36s %-8s %-13s %-15s %-20s %-18s %7d\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.RequestID, e.AccountPrefix,
			e.Resource, e.Tier, model, e.Outcome, e.Tokens)
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-13s %-22s %8s\n", "Day", "Resource", "Outcome", "Count")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-13s %-22s %8d\n", s.Day, s.Resource, s.Outcome, s.Count)
	}
	return b.String()
}
