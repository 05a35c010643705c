package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SakshamDixitSBH/docrag/internal/answer"
	"github.com/SakshamDixitSBH/docrag/internal/config"
	"github.com/SakshamDixitSBH/docrag/internal/store"
	"github.com/SakshamDixitSBH/docrag/pkg/version"
)

// MaxResults caps k for tool calls.
const MaxResults = 100

// Server is the MCP server for docrag. It exposes search and index status
// tools, plus ask when an answer service is configured.
type Server struct {
	mcp    *mcp.Server
	index  *store.Index
	answer *answer.Service
	config *config.Config
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Option configures a Server.
type Option func(*Server)

// WithAnswerService enables the ask tool.
func WithAnswerService(svc *answer.Service) Option {
	return func(s *Server) { s.answer = svc }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP server over ix.
func NewServer(ix *store.Index, cfg *config.Config, opts ...Option) (*Server, error) {
	if ix == nil {
		return nil, errors.New("index is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		index:  ix,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "docrag",
			Version: version.Short(),
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) tools() []ToolInfo {
	tools := []ToolInfo{
		{
			Name:        "search",
			Description: "Keyword search over indexed PDF pages and emails, ranked by BM25. Use kind to restrict to pdf or email. Returns chunk text with provenance (file and page, or subject, sender and date).",
		},
		{
			Name:        "index_status",
			Description: "Report how many chunks are indexed per source kind, the index state and where it is persisted.",
		},
	}
	if s.answer != nil {
		tools = append(tools, ToolInfo{
			Name:        "ask",
			Description: "Answer a question using only retrieved chunks, with inline citations like [pdf p.3] or [email].",
		})
	}
	return tools
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return s.tools()
}

func (s *Server) registerTools() {
	for _, t := range s.tools() {
		tool := &mcp.Tool{Name: t.Name, Description: t.Description}
		switch t.Name {
		case "search":
			mcp.AddTool(s.mcp, tool, s.mcpSearchHandler)
		case "index_status":
			mcp.AddTool(s.mcp, tool, s.mcpIndexStatusHandler)
		case "ask":
			mcp.AddTool(s.mcp, tool, s.mcpAskHandler)
		}
		s.logger.Debug("mcp_tool_registered", "name", t.Name)
	}
}

// CallTool invokes a tool by name with JSON-style arguments, bypassing the
// transport.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		hits, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return SearchOutput{Results: toResultOutputs(hits)}, nil
	case "index_status":
		return s.indexStatus(), nil
	case "ask":
		if s.answer == nil {
			return nil, NewMethodNotFoundError(name)
		}
		var in AskInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.ask(ctx, in)
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

// resolve validates the shared kind and k arguments.
func (s *Server) resolve(kindArg string, k int) (store.Kind, int, error) {
	kind, err := store.ParseKind(kindArg)
	if err != nil {
		return "", 0, NewInvalidParamsError(err.Error())
	}
	if k <= 0 {
		k = s.config.Search.DefaultK
	}
	return kind, min(k, MaxResults), nil
}

func (s *Server) search(ctx context.Context, in SearchInput) ([]store.Hit, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required")
	}
	kind, k, err := s.resolve(in.Kind, in.K)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, MapError(err)
	}

	start := time.Now()
	hits := s.index.Search(in.Query, kind, k)
	s.logger.Info("mcp_search",
		"kind", string(kind),
		"k", k,
		"results", len(hits),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return hits, nil
}

func (s *Server) indexStatus() *IndexStatusOutput {
	stats := s.index.Stats()
	byKind := make(map[string]int, len(stats.ByKind))
	for k, n := range stats.ByKind {
		byKind[string(k)] = n
	}
	return &IndexStatusOutput{
		State:         stats.State,
		Entries:       stats.Entries,
		ByKind:        byKind,
		AvgDocLength:  stats.AvgDocLength,
		Generation:    stats.Generation,
		Backend:       string(stats.Backend),
		Location:      stats.Location,
		AnswerEnabled: s.answer != nil,
	}
}

func (s *Server) ask(ctx context.Context, in AskInput) (*answer.Answer, AskOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question parameter is required")
	}
	kind, k, err := s.resolve(in.Kind, in.K)
	if err != nil {
		return nil, AskOutput{}, err
	}
	ans, err := s.answer.Ask(ctx, in.Question, kind, k)
	if err != nil {
		return nil, AskOutput{}, MapError(err)
	}
	return ans, AskOutput{Answer: ans.Text, Sources: toResultOutputs(ans.Hits)}, nil
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	hits, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(input.Query, hits)), SearchOutput{Results: toResultOutputs(hits)}, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(), nil
}

// mcpAskHandler is the MCP SDK handler for the ask tool.
func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	ans, out, err := s.ask(ctx, input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(FormatAnswer(ans)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve starts the server with the specified transport and blocks until
// ctx is cancelled or the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", "transport", transport, "tools", len(s.tools()))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", "error", err.Error())
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
