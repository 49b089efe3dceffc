package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolRetrieveContext = "retrieve_context"
	ToolIndexWorkspace  = "index_workspace"
	ToolGetStatus       = "get_status"
)

// retrieveContextTool returns the tool definition for retrieve_context
func retrieveContextTool() mcp.Tool {
	return mcp.Tool{
		Name: ToolRetrieveContext,
		Description: "Retrieve the code snippets most relevant to a query from the configured " +
			"workspaces, combining full-text and embedding search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or code query",
				},
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Optional absolute directory restricting results to files beneath it",
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexWorkspaceTool returns the tool definition for index_workspace
func indexWorkspaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexWorkspace,
		Description: "Index a workspace directory on its current git branch so it can be retrieved from",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index test files (defaults to the server configuration)",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetStatus,
		Description: "Get index status and statistics for a workspace on its current branch",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
			},
			Required: []string{"path"},
		},
	}
}
