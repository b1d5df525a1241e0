// Package mcp serves read-only views of the metering engine to MCP clients
// over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/complexity"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/intent"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/quota"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/router"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/tokens"
)

// AuditSearcher reads the generation audit trail.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.GenerationEntry, error)
	Stats(ctx context.Context) ([]models.AuditStat, error)
}

// Deps are the components the tools read from. Audit is optional.
type Deps struct {
	Ledger     *quota.Ledger
	Tokens     *tokens.Account
	Router     *router.Router
	Intents    *intent.Classifier
	Complexity *complexity.Analyzer
	Audit      AuditSearcher
}

// Server is a minimal MCP server speaking JSON-RPC 2.0 over stdio.
type Server struct {
	d       Deps
	version string
}

// New creates a new MCP Server.
func New(d Deps, version string) *Server {
	return &Server{d: d, version: version}
}

// Run reads one JSON-RPC message per line from r and writes responses to w.
// It blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "kroniq", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult("unknown tool: "+params.Name))
	}
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Error("mcp: marshal response")
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.WithError(err).Error("mcp: write response")
	}
}
