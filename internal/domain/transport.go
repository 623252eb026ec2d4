package domain

import (
	"context"
	"encoding/json"
)

// Transport executes remote MCP operations. Implementations wrap a live
// client session; any error is treated uniformly as a dispatch failure.
type Transport interface {
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	ReadResource(ctx context.Context, uri string) (json.RawMessage, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error)
	ListTools(ctx context.Context) ([]ToolDefinition, error)
}
