package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/audit"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"kroniq_usage":        handleUsage,
	"kroniq_classify":     handleClassify,
	"kroniq_route":        handleRoute,
	"kroniq_audit_search": handleAuditSearch,
	"kroniq_audit_stats":  handleAuditStats,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var allTools = []ToolDefinition{
	{
		Name:        "kroniq_usage",
		Description: "Show an account's tier, per-resource quota usage and token balance for the current period.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"account_id"},
			"properties": map[string]any{
				"account_id": stringProp("The account to inspect"),
			},
		},
	},
	{
		Name:        "kroniq_classify",
		Description: "Classify a message into a generation intent and complexity class, and report whether it would auto-route.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message": stringProp("The user message to classify"),
			},
		},
	},
	{
		Name:        "kroniq_route",
		Description: "Show the model a tier is routed to for a resource and complexity. Without arguments, show the full routing table.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tier":       stringProp("free, starter_hidden, starter, pro or premium (optional)"),
				"resource":   stringProp("chat, image, video, music, voice or presentation (optional)"),
				"complexity": stringProp("simple, medium or complex (optional, defaults to medium)"),
			},
		},
	},
	{
		Name:        "kroniq_audit_search",
		Description: "Search the generation audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"account_id": stringProp("Filter by account (optional)"),
				"resource":   stringProp("Filter by resource type (optional)"),
				"outcome":    stringProp("Filter by outcome such as success or quota_exceeded (optional)"),
				"since":      stringProp("Start date in YYYY-MM-DD format (optional)"),
			},
		},
	},
	{
		Name:        "kroniq_audit_stats",
		Description: "Show generation counts per day, resource and outcome.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

type usageArgs struct {
	AccountID string `json:"account_id"`
}

func handleUsage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args usageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.AccountID) == "" {
		return errorResult("account_id is required")
	}
	quotas := s.d.Ledger.Status(ctx, args.AccountID)
	var tier models.Tier
	if len(quotas) > 0 {
		tier = quotas[0].Tier
	}
	bal := s.d.Tokens.BalanceTier(ctx, args.AccountID, tier)
	return textResult(formatUsage(args.AccountID, tier, quotas, bal))
}

type classifyArgs struct {
	Message string `json:"message"`
}

func handleClassify(_ context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args classifyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Message) == "" {
		return errorResult("message is required")
	}
	res := s.d.Intents.Classify(args.Message)
	return textResult(formatClassification(res, s.d.Intents.ShouldAutoRoute(res), s.d.Complexity.Analyze(args.Message)))
}

type routeArgs struct {
	Tier       string `json:"tier"`
	Resource   string `json:"resource"`
	Complexity string `json:"complexity"`
}

func handleRoute(_ context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args routeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Tier == "" && args.Resource == "" {
		return textResult(formatRoutes(s.d.Router.Table()))
	}

	tier, err := models.ParseTier(args.Tier)
	if err != nil {
		return errorResult(err.Error())
	}
	resource, err := models.ParseResource(args.Resource)
	if err != nil {
		return errorResult(err.Error())
	}
	cx := models.ComplexityMedium
	if args.Complexity != "" {
		if cx, err = models.ParseComplexity(args.Complexity); err != nil {
			return errorResult(err.Error())
		}
	}
	return textResult(formatRoutes([]models.RoutingDecision{s.d.Router.Route(tier, resource, cx)}))
}

type auditSearchArgs struct {
	AccountID string `json:"account_id"`
	Resource  string `json:"resource"`
	Outcome   string `json:"outcome"`
	Since     string `json:"since"`
}

func handleAuditSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.AuditQueryOpts{Outcome: args.Outcome, Limit: 50}
	if args.AccountID != "" {
		_, opts.AccountPrefix = audit.HashAccount(args.AccountID)
	}
	if args.Resource != "" {
		r, err := models.ParseResource(args.Resource)
		if err != nil {
			return errorResult(err.Error())
		}
		opts.Resource = r
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.d.Audit.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleAuditStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.d.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	stats, err := s.d.Audit.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching audit stats: " + err.Error())
	}
	return textResult(formatAuditStats(stats))
}
