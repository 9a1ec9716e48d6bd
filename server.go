package agriquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agrisense/agriquery/cache"
	"github.com/agrisense/agriquery/exactmatch"
	"github.com/agrisense/agriquery/preprocess"
	"github.com/agrisense/agriquery/retrieval"
	"github.com/agrisense/agriquery/schema"
)

const instructions = "This is a Vietnamese agricultural assistant. It answers farming questions from a knowledge base, " +
	"reports on the user's farm data and controls irrigation and lighting devices."

// NewServer exposes p as MCP tools.
func NewServer(p *Pipeline) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		p.Config.Server.Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	// Question answering
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("ask", "Answer a farming question or run a farm data/device request through the full query pipeline", GetAskSchema()),
		HandleAsk(p),
	)
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("conversation-history", "Return the recorded turns of a conversation", GetConversationSchema()),
		HandleConversationHistory(p),
	)

	// Query understanding
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("classify-intent", "Classify a query into an intent with its extracted entities", GetQuerySchema()),
		HandleClassifyIntent(p),
	)
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("extract-entities", "Extract dates, money, crops, areas, devices, activities and metrics from a query", GetQuerySchema()),
		HandleExtractEntities(p),
	)
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("preprocess-query", "Clean a query for search and report its keywords and complexity", GetQuerySchema()),
		HandlePreprocess(p),
	)

	// Knowledge search
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("search-knowledge", "Search the knowledge base by exact match or by hybrid retrieval with answer synthesis", GetSearchSchema()),
		HandleSearch(p),
	)

	// Cache management
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("cache-stats", "Report search cache counters, recent exact-match analytics and the lexicon version", GetEmptySchema()),
		HandleCacheStats(p),
	)
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("invalidate-cache", "Drop cached search results after a user's data changed", GetInvalidateSchema()),
		HandleInvalidateCache(p),
	)

	return mcpServer
}

func GetAskSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The user's question or request, in Vietnamese"},
			"user_id": {"type": "string", "description": "Owner of the farm data the request may read or control"},
			"conversation_id": {"type": "string", "description": "Records the turn under this conversation when set"}
		},
		"required": ["query"]
	}`)
}

func GetQuerySchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The text to analyse"}
		},
		"required": ["query"]
	}`)
}

func GetSearchSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search text"},
			"mode": {"type": "string", "enum": ["exact", "rag"], "default": "exact", "description": "exact runs full-text matching, rag runs hybrid retrieval and synthesis"},
			"user_id": {"type": "string", "description": "Include this user's private chunks"},
			"crop": {"type": "string", "description": "Restrict results to a crop type"}
		},
		"required": ["query"]
	}`)
}

func GetConversationSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"conversation_id": {"type": "string", "description": "The conversation to read"}
		},
		"required": ["conversation_id"]
	}`)
}

func GetInvalidateSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {"type": "string", "description": "The user whose data changed"}
		}
	}`)
}

func GetEmptySchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func HandleAsk(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireQuery(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp := p.Ask(ctx, schema.Query{
			Text:           query,
			UserID:         request.GetString("user_id", ""),
			ConversationID: request.GetString("conversation_id", ""),
		})
		return jsonResult(resp)
	}
}

func HandleClassifyIntent(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireQuery(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cls, err := p.Classifier.Classify(ctx, query)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("classification failed", err), nil
		}
		return jsonResult(struct {
			*schema.IntentClassification
			Category string `json:"category"`
		}{cls, cls.Intent.Category().String()})
	}
}

func HandleExtractEntities(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireQuery(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entities := p.Extractor.Extract(query)
		if entities == nil {
			entities = []schema.Entity{}
		}
		return jsonResult(map[string]any{"entities": entities})
	}
}

func HandlePreprocess(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireQuery(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res := p.Preprocessor.Preprocess(query)
		return jsonResult(struct {
			preprocess.Result
			SearchText   string   `json:"search_text"`
			Alternatives []string `json:"alternatives"`
		}{
			Result:       res,
			SearchText:   res.SearchText(),
			Alternatives: p.Preprocessor.SuggestAlternatives(query),
		})
	}
}

func HandleSearch(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireQuery(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		userID := request.GetString("user_id", "")
		crop := request.GetString("crop", "")

		switch mode := request.GetString("mode", "exact"); mode {
		case "exact":
			so := exactmatch.SearchOptions{UserID: userID, CropFilter: crop}
			var res exactmatch.Result
			if p.Config.Pipeline.UseExpansion {
				res = p.ExactMatch.SearchWithExpansion(ctx, query, so)
			} else {
				res = p.ExactMatch.Search(ctx, query, so)
			}
			return jsonResult(res)
		case "rag":
			res := p.Retrieval.Retrieve(ctx, query, retrieval.Options{
				UseHybrid:  p.Config.Pipeline.UseHybrid,
				UserID:     userID,
				CropFilter: crop,
			})
			return jsonResult(res)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unsupported search mode %q", mode)), nil
		}
	}
}

func HandleCacheStats(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(struct {
			Cache          cache.Stats                 `json:"cache"`
			ExactMatch     exactmatch.AnalyticsSummary `json:"exact_match"`
			LexiconVersion string                      `json:"lexicon_version"`
			Version        string                      `json:"version"`
		}{
			Cache:          p.SearchCache.Stats(),
			ExactMatch:     p.ExactMatch.Analytics().Summary(),
			LexiconVersion: p.Lexicon.Version,
			Version:        Version,
		})
	}
}

func HandleInvalidateCache(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n := p.InvalidateCache(ctx, request.GetString("user_id", ""))
		return jsonResult(map[string]int{"invalidated": n})
	}
}

func HandleConversationHistory(p *Pipeline) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("conversation_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sess, ok, err := p.Sessions.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("load conversation failed", err), nil
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %s not found", id)), nil
		}
		return jsonResult(sess)
	}
}

func requireQuery(request mcp.CallToolRequest) (string, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	return query, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
