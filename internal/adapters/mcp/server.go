// Package mcpadapter exposes the shortlist pipeline as MCP tools for chat clients.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

const (
	ServerName = "cv-shortlist"

	ToolAskCandidates = "ask_candidates"
	ToolReindex       = "reindex"
	ToolIndexStatus   = "index_status"
)

type Server struct {
	ranker      ports.CandidateRanker
	indexer     ports.IndexBuilder
	status      ports.IndexStatusReader
	stagingPath string
	mcp         *server.MCPServer
}

func NewServer(
	version string,
	stagingPath string,
	ranker ports.CandidateRanker,
	indexer ports.IndexBuilder,
	status ports.IndexStatusReader,
) *Server {
	s := &Server{
		ranker:      ranker,
		indexer:     indexer,
		status:      status,
		stagingPath: stagingPath,
		mcp:         server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolAskCandidates,
		mcp.WithDescription("Rank the indexed CVs against a hiring need and return the shortlist."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The hiring need, e.g. 'senior Go engineer with Kafka'.")),
		mcp.WithArray("conversation_context",
			mcp.Description("Earlier chat turns used as context for the judge."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{domain.RoleUser, domain.RoleAssistant}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
		mcp.WithString("format", mcp.Description("text (default) or json."), mcp.Enum("text", "json")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool(ToolReindex,
		mcp.WithDescription("Rebuild the CV index from the configured staging directory."),
	), s.handleReindex)

	s.mcp.AddTool(mcp.NewTool(ToolIndexStatus,
		mcp.WithDescription("Describe the active CV index."),
	), s.handleStatus)

	return s
}

// ServeStdio blocks serving MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conversation, err := parseConversation(request.GetArguments()["conversation_context"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	shortlist, err := s.ranker.Ask(ctx, question, conversation)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if strings.EqualFold(request.GetString("format", "text"), "json") {
		payload, err := json.MarshalIndent(shortlist, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal shortlist: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
	return mcp.NewToolResultText(shortlist.Summary()), nil
}

func (s *Server) handleReindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, message := s.indexer.Reindex(ctx, s.stagingPath)
	if !ok {
		return mcp.NewToolResultError(message), nil
	}
	return mcp.NewToolResultText(message), nil
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, ok := s.status.Active()
	if !ok {
		return mcp.NewToolResultText("No index is loaded. Run the reindex tool first."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Index %s: %d documents, %d chunks, dimension %d, model %s, built %s.",
		info.BuildID, info.Documents, info.Chunks, info.Dimension, info.Model, info.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	)), nil
}

func parseConversation(raw any) ([]domain.ConversationTurn, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("conversation_context must be an array")
	}
	turns := make([]domain.ConversationTurn, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("conversation_context[%d] must be an object", i)
		}
		role, _ := obj["role"].(string)
		content, _ := obj["content"].(string)
		turns = append(turns, domain.ConversationTurn{Role: role, Content: content})
	}
	return domain.NormalizeConversation(turns)
}
