package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codebase-context/internal/app"
	"github.com/dshills/codebase-context/internal/indexer"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNoWorkspace        = -32005 // No workspace roots to search
	ErrorCodeNoResults          = -32006 // Neither backend found anything
)

// handleRetrieveContext handles the retrieve_context tool invocation
func (s *Server) handleRetrieveContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.EnsureRequestID(ctx)
	args := request.GetArguments()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult(newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})), nil
	}
	directory := getStringDefault(args, "directory", "")

	items, err := s.service.Retrieve(ctx, query, directory)
	if err != nil {
		s.logger.WithContext(ctx).Info("retrieve_context failed", "error", err)
		return errorResult(toMCPError(err)), nil
	}

	s.logger.WithContext(ctx).Debug("retrieve_context", "items", len(items))
	return mcp.NewToolResultText(formatJSON(items)), nil
}

// handleIndexWorkspace handles the index_workspace tool invocation
func (s *Server) handleIndexWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.EnsureRequestID(ctx)
	args := request.GetArguments()

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult(newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})), nil
	}

	req := app.IndexRequest{Path: path}
	if v, ok := args["include_tests"].(bool); ok {
		req.IncludeTests = &v
	}

	result, err := s.service.Index(ctx, req)
	if err != nil {
		s.logger.WithContext(ctx).Warn("index_workspace failed", "path", path, "error", err)
		return errorResult(toMCPError(err)), nil
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.EnsureRequestID(ctx)
	args := request.GetArguments()

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult(newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})), nil
	}

	status, err := s.service.Status(ctx, path)
	if err != nil {
		return errorResult(toMCPError(err)), nil
	}
	return mcp.NewToolResultText(formatJSON(status)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error. It is returned to clients as
// the JSON body of an error tool result so the code survives transport.
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps service errors onto MCP error codes
func toMCPError(err error) *MCPError {
	switch {
	case errors.Is(err, types.ErrNoWorkspace):
		return newMCPError(ErrorCodeNoWorkspace, types.ErrNoWorkspace.Error(), nil)
	case errors.Is(err, types.ErrNoResults):
		return newMCPError(ErrorCodeNoResults, types.ErrNoResults.Error(), nil)
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, indexer.ErrIndexingInProgress.Error(), nil)
	case errors.Is(err, app.ErrPathRequired),
		errors.Is(err, app.ErrPathNotAbsolute),
		errors.Is(err, app.ErrPathNotFound),
		errors.Is(err, app.ErrPathNotReadable),
		errors.Is(err, app.ErrNotDirectory):
		return newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func errorResult(e *MCPError) *mcp.CallToolResult {
	return mcp.NewToolResultError(formatJSON(e))
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
