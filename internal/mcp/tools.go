package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/locator"
	"github.com/trieloff/calibre-mcp/internal/model"
	"github.com/trieloff/calibre-mcp/internal/search"
)

const (
	toolNameSearch       = "search"
	toolNameFetch        = "fetch"
	toolNameSearchAuthor = "search-author"
	toolNameSearchTitle  = "search-title"
	toolNameGetExcerpt   = "get-excerpt"
)

// toolOrder fixes the listing order; the legacy tools go last.
var toolOrder = []string{
	toolNameSearch,
	toolNameFetch,
	toolNameSearchAuthor,
	toolNameSearchTitle,
	toolNameGetExcerpt,
}

type toolHandler func(context.Context, map[string]interface{}) (toolCallResult, *rpcError)

type toolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	handler     toolHandler
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent interface{}       `json:"structuredContent,omitempty"`
}

type toolContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		toolNameSearch: {
			Name:        toolNameSearch,
			Description: "Search the library. field:value tokens (author:, title:, tag:, …) filter metadata; bare words search book content; mixing both narrows by metadata first.",
			InputSchema: searchInputSchema(s.opts.DefaultLimit, s.opts.MaxLimit),
			handler:     s.handleSearchTool,
		},
		toolNameFetch: {
			Name:        toolNameFetch,
			Description: "Resolve a calibre:// locator from a previous search back into literal book text.",
			InputSchema: fetchInputSchema(),
			handler:     s.handleFetchTool,
		},
		toolNameSearchAuthor: {
			Name:        toolNameSearchAuthor,
			Description: "List books by an author.",
			InputSchema: fieldSearchInputSchema("author", s.opts.DefaultLimit, s.opts.MaxLimit),
			handler:     s.handleSearchAuthorTool,
		},
		toolNameSearchTitle: {
			Name:        toolNameSearchTitle,
			Description: "List books matching a title.",
			InputSchema: fieldSearchInputSchema("title", s.opts.DefaultLimit, s.opts.MaxLimit),
			handler:     s.handleSearchTitleTool,
		},
		toolNameGetExcerpt: {
			Name:        toolNameGetExcerpt,
			Description: "Extract keyword context windows from a single book, paginated; without a keyword, the opening paragraphs.",
			InputSchema: getExcerptInputSchema(),
			handler:     s.handleGetExcerptTool,
		},
	}
}

func (s *Server) toolList() []toolDefinition {
	tools := make([]toolDefinition, 0, len(s.tools))
	for _, name := range toolOrder {
		if tool, ok := s.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

func (s *Server) handleSearchTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *rpcError) {
	if rpcErr := assertKnownArguments(args, "query", "limit", "fuzzy_fallback"); rpcErr != nil {
		return toolCallResult{}, rpcErr
	}
	queryArg, ok, err := parseRequiredString(args, "query")
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if !ok {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: "query is required"}
	}

	limit, rpcErr := s.parseLimit(args, "limit")
	if rpcErr != nil {
		return toolCallResult{}, rpcErr
	}
	fuzzy, err := parseOptionalBool(args, "fuzzy_fallback")
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}

	res := s.searcher.Search(ctx, queryArg, limit, fuzzy)
	return formatResult(res), nil
}

func (s *Server) handleFetchTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *rpcError) {
	if rpcErr := assertKnownArguments(args, "url"); rpcErr != nil {
		return toolCallResult{}, rpcErr
	}
	rawURL, ok, err := parseRequiredString(args, "url")
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if !ok {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: "url is required"}
	}

	loc, err := locator.Decode(rawURL)
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	text, rec, err := s.searcher.Fetch(ctx, loc)
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInternalError, Message: fetchErrorMessage(loc.BookID, err)}
	}
	return formatFetch(rawURL, rec, loc, text), nil
}

func (s *Server) handleSearchAuthorTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *rpcError) {
	return s.handleFieldSearch(ctx, args, "author")
}

func (s *Server) handleSearchTitleTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *rpcError) {
	return s.handleFieldSearch(ctx, args, "title")
}

// handleFieldSearch backs the legacy single-field tools. The value is kept
// as one quoted filter so multi-word names stay a metadata-only search.
func (s *Server) handleFieldSearch(ctx context.Context, args map[string]interface{}, field string) (toolCallResult, *rpcError) {
	if rpcErr := assertKnownArguments(args, field, "limit"); rpcErr != nil {
		return toolCallResult{}, rpcErr
	}
	value, ok, err := parseRequiredString(args, field)
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if !ok {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: field + " is required"}
	}
	limit, rpcErr := s.parseLimit(args, "limit")
	if rpcErr != nil {
		return toolCallResult{}, rpcErr
	}

	expr := fmt.Sprintf(`%s:"%s"`, field, strings.ReplaceAll(value, `"`, ""))
	matches := s.searcher.Metadata(ctx, expr, limit)
	return formatResult(search.Result{Kind: model.SearchMetadataOnly, Matches: matches}), nil
}

func (s *Server) handleGetExcerptTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *rpcError) {
	if rpcErr := assertKnownArguments(args, "book_id", "keyword", "context_lines", "max_results", "page"); rpcErr != nil {
		return toolCallResult{}, rpcErr
	}
	bookID, present, err := parseOptionalInteger(args, "book_id")
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if !present {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: "book_id is required"}
	}
	if bookID < 1 {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: "book_id must be a positive integer"}
	}

	keyword, err := parseOptionalString(args, "keyword")
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	req := search.ExcerptRequest{BookID: int64(bookID), Keyword: keyword}

	for _, opt := range []struct {
		key string
		dst *int
	}{
		{"context_lines", &req.ContextLines},
		{"max_results", &req.MaxResults},
		{"page", &req.Page},
	} {
		v, present, err := parseOptionalInteger(args, opt.key)
		if err != nil {
			return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		if present {
			if v < 1 {
				return toolCallResult{}, &rpcError{Code: codeInvalidParams, Message: opt.key + " must be >= 1"}
			}
			*opt.dst = v
		}
	}

	res, err := s.searcher.Excerpt(ctx, req)
	if err != nil {
		return toolCallResult{}, &rpcError{Code: codeInternalError, Message: fetchErrorMessage(req.BookID, err)}
	}
	return formatExcerpt(res), nil
}

func fetchErrorMessage(bookID int64, err error) string {
	switch {
	case errors.Is(err, model.ErrNoTextFormat):
		return fmt.Sprintf("book %d has no text format available", bookID)
	case errors.Is(err, model.ErrBookNotFound):
		return fmt.Sprintf("book %d not found", bookID)
	case errors.Is(err, model.ErrLineNotFound):
		return fmt.Sprintf("requested lines do not exist in book %d", bookID)
	default:
		return err.Error()
	}
}

func (s *Server) parseLimit(args map[string]interface{}, key string) (int, *rpcError) {
	v, present, err := parseOptionalInteger(args, key)
	if err != nil {
		return 0, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if !present || v <= 0 {
		return s.opts.DefaultLimit, nil
	}
	if v > s.opts.MaxLimit {
		return 0, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s must be between 1 and %d", key, s.opts.MaxLimit)}
	}
	return v, nil
}

// assertKnownArguments rejects argument keys the tool's schema does not
// declare, enforcing additionalProperties: false on the server side too.
func assertKnownArguments(args map[string]interface{}, known ...string) *rpcError {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		recognized := false
		for _, k := range known {
			if key == k {
				recognized = true
				break
			}
		}
		if !recognized {
			return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown argument: %s", key)}
		}
	}
	return nil
}

func parseRequiredString(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func parseOptionalString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(value), nil
}

func parseOptionalBool(args map[string]interface{}, key string) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return value, nil
}

func parseOptionalInteger(args map[string]interface{}, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, true, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be an integer", key)
	}
}

func searchInputSchema(defaultLimit, maxLimit int) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"query":          map[string]interface{}{"type": "string", "minLength": 1},
			"limit":          map[string]interface{}{"type": "integer", "minimum": 1, "maximum": maxLimit, "default": defaultLimit},
			"fuzzy_fallback": map[string]interface{}{"type": "boolean", "default": false},
		},
		"required": []string{"query"},
	}
}

func fetchInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "minLength": 1},
		},
		"required": []string{"url"},
	}
}

func fieldSearchInputSchema(field string, defaultLimit, maxLimit int) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			field:   map[string]interface{}{"type": "string", "minLength": 1},
			"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": maxLimit, "default": defaultLimit},
		},
		"required": []string{field},
	}
}

func getExcerptInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"book_id":       map[string]interface{}{"type": "integer", "minimum": 1},
			"keyword":       map[string]interface{}{"type": "string"},
			"context_lines": map[string]interface{}{"type": "integer", "minimum": 1, "default": 10},
			"max_results":   map[string]interface{}{"type": "integer", "minimum": 1, "default": 10},
			"page":          map[string]interface{}{"type": "integer", "minimum": 1, "default": 1},
		},
		"required": []string{"book_id"},
	}
}
