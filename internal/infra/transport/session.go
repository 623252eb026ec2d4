package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpq/internal/domain"
)

// SessionTransport adapts a live MCP client session to the domain transport
// contract. All session errors surface unchanged as dispatch failures.
type SessionTransport struct {
	session *mcp.ClientSession
	logger  *zap.Logger
}

// NewSessionTransport wraps an established client session.
func NewSessionTransport(session *mcp.ClientSession, logger *zap.Logger) *SessionTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionTransport{
		session: session,
		logger:  logger.Named("transport"),
	}
}

func (t *SessionTransport) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("tool %s reported error: %s", name, textContent(result.Content))
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return payload, nil
}

func (t *SessionTransport) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	result, err := t.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode resource result: %w", err)
	}
	return payload, nil
}

func (t *SessionTransport) GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	result, err := t.session.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode prompt result: %w", err)
	}
	return payload, nil
}

func (t *SessionTransport) ListTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	result, err := t.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defs := make([]domain.ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		def, err := toolFromMCP(tool)
		if err != nil {
			t.logger.Warn("skipping tool with unusable schema",
				zap.String("tool", tool.Name),
				zap.Error(err),
			)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Close terminates the underlying session.
func (t *SessionTransport) Close() error {
	return t.session.Close()
}

func toolFromMCP(tool *mcp.Tool) (domain.ToolDefinition, error) {
	if tool == nil {
		return domain.ToolDefinition{}, fmt.Errorf("nil tool")
	}
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return domain.ToolDefinition{}, fmt.Errorf("encode input schema: %w", err)
	}
	return domain.ToolDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}, nil
}

func textContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if text, ok := item.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "no error detail"
	}
	return strings.Join(parts, "; ")
}

var _ domain.Transport = (*SessionTransport)(nil)
