package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mixsearch/internal/async"
	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
	"github.com/Aman-CERP/mixsearch/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "mixsearch"

// topTermsInStats bounds the query terms returned by the stats tool.
const topTermsInStats = 10

// Searcher is the read side of the index.
type Searcher interface {
	Search(ctx context.Context, query, scope string, opts search.SearchOptions) (*search.Response, error)
	Summary(ctx context.Context) (*search.IndexSummary, error)
}

// Builder rebuilds the index from the configured source.
type Builder interface {
	Execute(ctx context.Context) (*index.BuildResult, error)
}

// BuildStatus reports whether a build is running.
type BuildStatus interface {
	Status() async.Snapshot
}

// Dependencies are the collaborators exposed over MCP. Engine and Tokenizer
// are required; a nil Builder hides build_index, a nil Lookup disables the
// document resource and a nil QueryLog the query_metrics resource.
type Dependencies struct {
	Engine      Searcher
	Tokenizer   *tokenize.Tokenizer
	Builder     Builder
	BuildStatus BuildStatus
	Lookup      store.DocumentLookup
	QueryLog    *telemetry.QueryLog
	Logger      *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Server is the MCP server for mixsearch.
type Server struct {
	mcp  *mcp.Server
	deps Dependencies

	logger *slog.Logger
	tools  []ToolInfo
}

// NewServer creates a server and registers its tools and resources.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(s.tools))
	copy(out, s.tools)
	return out
}

func (s *Server) registerTools() {
	addTool(s, "search",
		"Search the document index. Handles English, Chinese and mixed queries; "+
			"blends BM25 with embedding similarity when embed is set.",
		s.mcpSearchHandler)

	addTool(s, "tokenize",
		"Show how text is tokenized in document or query mode, with term frequencies.",
		s.mcpTokenizeHandler)

	addTool(s, "stats",
		"Report the size of the committed index and recent query activity.",
		s.mcpStatsHandler)

	if s.deps.Builder != nil {
		addTool(s, "build_index",
			"Rebuild the index from the configured document source. Fails if another build holds the lock.",
			s.mcpBuildIndexHandler)
	}

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(s.tools)))
}

func addTool[In, Out any](s *Server, name, description string, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description}, h)
	s.tools = append(s.tools, ToolInfo{Name: name, Description: description})
	s.logger.Debug("mcp_tool_registered", slog.String("name", name))
}

// CallTool invokes a tool by name, decoding args into the tool's input type.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpSearchHandler(ctx, nil, in)
		return out, err
	case "tokenize":
		var in TokenizeInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpTokenizeHandler(ctx, nil, in)
		return out, err
	case "stats":
		_, out, err := s.mcpStatsHandler(ctx, nil, StatsInput{})
		return out, err
	case "build_index":
		if s.deps.Builder == nil {
			return nil, NewMethodNotFoundError(name)
		}
		_, out, err := s.mcpBuildIndexHandler(ctx, nil, BuildIndexInput{})
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if args == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Alpha != nil && (*input.Alpha < 0 || *input.Alpha > 1) {
		return nil, SearchOutput{}, NewInvalidParamsError("alpha must be between 0 and 1")
	}

	requestID := uuid.NewString()
	scope := input.Scope
	if strings.EqualFold(scope, "all") {
		scope = ""
	}

	s.logger.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("scope", scope),
		slog.Int("limit", input.Limit))

	resp, err := s.deps.Engine.Search(ctx, input.Query, scope, search.SearchOptions{
		Alpha:        input.Alpha,
		UseEmbedding: input.Embed,
		Limit:        input.Limit,
	})
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int("result_count", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded))
	return nil, toSearchOutput(resp), nil
}

func (s *Server) mcpTokenizeHandler(_ context.Context, _ *mcp.CallToolRequest, input TokenizeInput) (
	*mcp.CallToolResult,
	TokenizeOutput,
	error,
) {
	opts := tokenize.Options{Mode: tokenize.ModeDocument}
	switch tokenize.Mode(strings.ToLower(input.Mode)) {
	case "", tokenize.ModeDocument:
	case tokenize.ModeQuery:
		opts.Mode = tokenize.ModeQuery
	default:
		return nil, TokenizeOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown mode %q (expected document or query)", input.Mode))
	}
	if input.CJKMode != "" {
		m, ok := tokenize.ParseCJKMode(input.CJKMode)
		if !ok {
			return nil, TokenizeOutput{}, NewInvalidParamsError(
				fmt.Sprintf("unknown cjkMode %q (expected span, char or bigram)", input.CJKMode))
		}
		opts.CJKMode = m
	}

	st := s.deps.Tokenizer.Stats(input.Text, opts)
	return nil, TokenizeOutput{
		Tokens:      st.Tokens,
		TF:          st.TF,
		Length:      st.Length,
		UniqueTerms: st.UniqueTerms,
	}, nil
}

func (s *Server) mcpStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	sum, err := s.deps.Engine.Summary(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}

	out := StatsOutput{
		Documents:    sum.Documents,
		Terms:        sum.Terms,
		AvgDocLength: sum.AvgDocLength,
		Generation:   sum.Generation,
		Sources:      sum.Sources,
	}
	out.BuiltAt = formatTime(sum.BuiltAt)
	if out.Sources == nil {
		out.Sources = map[string]int{}
	}
	if s.deps.QueryLog != nil {
		out.Queries = toQueryStats(s.deps.QueryLog.Snapshot(topTermsInStats))
	}
	if s.deps.BuildStatus != nil {
		out.Indexing = toIndexingStatus(s.deps.BuildStatus.Status())
	}
	return nil, out, nil
}

func (s *Server) mcpBuildIndexHandler(ctx context.Context, _ *mcp.CallToolRequest, _ BuildIndexInput) (
	*mcp.CallToolResult,
	BuildIndexOutput,
	error,
) {
	requestID := uuid.NewString()
	s.logger.Info("mcp_build_started", slog.String("request_id", requestID))

	res, err := s.deps.Builder.Execute(ctx)
	if err != nil {
		s.logger.Error("mcp_build_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, BuildIndexOutput{}, MapError(err)
	}

	s.logger.Info("mcp_build_completed",
		slog.String("request_id", requestID),
		slog.String("generation", res.Generation),
		slog.Int("indexed", res.IndexedCount))
	return nil, BuildIndexOutput{
		Success:      res.Success,
		IndexedCount: res.IndexedCount,
		SkippedCount: res.SkippedCount,
		TotalTerms:   res.TotalTerms,
		AvgDocLength: res.AvgDocLength,
		Generation:   res.Generation,
		DurationMS:   res.Duration.Milliseconds(),
	}, nil
}

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
