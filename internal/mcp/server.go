// Package mcp implements the line-delimited JSON-RPC dispatcher that exposes
// the search service as MCP tools on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/trieloff/calibre-mcp/internal/search"
)

const (
	// ProtocolVersion is the MCP protocol revision this server negotiates.
	ProtocolVersion = "2025-06-18"

	serverName = "calibre-mcp"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// maxRequestBytes bounds a single request line.
const maxRequestBytes = 4 << 20

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServerOptions configure a dispatcher.
type ServerOptions struct {
	Version      string
	DefaultLimit int
	MaxLimit     int
}

// Server reads one JSON-RPC request per input line and writes one response
// per output line, in request order. Each line is handled independently: a
// malformed request produces an error response and the loop keeps going.
// The loop terminates only when the input stream closes.
type Server struct {
	searcher *search.Service
	opts     ServerOptions
	tools    map[string]toolDefinition
}

// NewServer wires the dispatcher to a search service.
func NewServer(searcher *search.Service, opts ServerOptions) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 200
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{searcher: searcher, opts: opts}
	s.tools = s.buildToolRegistry()
	return s
}

// Run drives the dispatcher loop until in reaches EOF or ctx is canceled.
// One request is fully processed, including backend calls and file scans,
// before the next line is read. A line longer than maxRequestBytes gets a
// parse-error response and is discarded up to the next newline; it never
// ends the loop.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReaderSize(in, 64*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, tooLong, err := readLine(reader)
		if tooLong {
			resp := errorResponse(nil, codeParseError, "parse error: request line too long")
			if werr := writeResponse(out, resp); werr != nil {
				return werr
			}
		} else if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			if resp := s.handleLine(ctx, []byte(trimmed)); resp != nil {
				if werr := writeResponse(out, resp); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// readLine reads up to the next newline. Lines longer than maxRequestBytes
// are reported as tooLong with their remainder consumed and dropped.
func readLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
		}
		if err == nil || errors.Is(err, io.EOF) {
			return buf, tooLong, err
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return buf, tooLong, err
		}
		if len(buf) > maxRequestBytes {
			tooLong = true
			buf = nil
		}
	}
}

func writeResponse(out io.Writer, resp *rpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

// handleLine parses and routes a single request line. It returns nil for
// notifications, which get no response.
func (s *Server) handleLine(ctx context.Context, line []byte) *rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, codeParseError, "parse error: invalid JSON")
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": s.opts.Version,
			},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return resultResponse(req.ID, map[string]interface{}{
			"tools": s.toolList(),
		})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, map[string]interface{}{
			"resources": []interface{}{},
		})
	case "prompts/list":
		return resultResponse(req.ID, map[string]interface{}{
			"prompts": []interface{}{},
		})
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{})
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req rpcRequest) *rpcResponse {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params is required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tools/call params.name is required")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}

	tool, ok := s.tools[params.Name]
	if !ok {
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	result, rpcErr := tool.handler(ctx, params.Arguments)
	if rpcErr != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: normalizeID(req.ID), Error: rpcErr}
	}
	return resultResponse(req.ID, result)
}

func resultResponse(id json.RawMessage, result interface{}) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: &rpcError{Code: code, Message: message}}
}

// normalizeID keeps the client's id verbatim, substituting an explicit null
// for requests whose id could not be read.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
