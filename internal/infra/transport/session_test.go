package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpq/internal/domain"
)

func newSessionFixture(t *testing.T, ctx context.Context, server *mcp.Server) *SessionTransport {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	transport := NewSessionTransport(session, nil)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func newToolServer(t *testing.T) *mcp.Server {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "fixture", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})

	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "echo input",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "echoed"}},
		}, nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "broken",
		Description: "always reports a tool error",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "bad input"}},
		}, nil
	})

	return server
}

func TestSessionTransport_CallTool(t *testing.T) {
	ctx := context.Background()
	session := newSessionFixture(t, ctx, newToolServer(t))

	payload, err := session.CallTool(ctx, "echo", map[string]any{"q": "x"})
	require.NoError(t, err)
	require.Contains(t, string(payload), "echoed")
}

func TestSessionTransport_CallToolSurfacesToolError(t *testing.T) {
	ctx := context.Background()
	session := newSessionFixture(t, ctx, newToolServer(t))

	_, err := session.CallTool(ctx, "broken", nil)
	require.ErrorContains(t, err, "broken reported error")
	require.ErrorContains(t, err, "bad input")
}

func TestSessionTransport_ListTools(t *testing.T) {
	ctx := context.Background()
	session := newSessionFixture(t, ctx, newToolServer(t))

	defs, err := session.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	byName := make(map[string]domain.ToolDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	echo, ok := byName["echo"]
	require.True(t, ok)
	require.Equal(t, "echo input", echo.Description)
	require.NotEmpty(t, echo.InputSchema)

	// Listed definitions are directly usable as schemas.
	var schema map[string]any
	require.NoError(t, json.Unmarshal(echo.InputSchema, &schema))
	require.Equal(t, "object", schema["type"])
}

func TestLoader_ResolvesDefinitionsFromListing(t *testing.T) {
	ctx := context.Background()
	session := newSessionFixture(t, ctx, newToolServer(t))
	loader := NewLoader(session)

	def, err := loader.Load(ctx, domain.ToolMetadata{Name: "echo"})
	require.NoError(t, err)
	require.Equal(t, "echo", def.Name)

	_, err = loader.Load(ctx, domain.ToolMetadata{Name: "ghost"})
	require.ErrorIs(t, err, domain.ErrToolNotFound)

	names, err := loader.ListAvailable(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"echo", "broken"}, names)

	require.NoError(t, loader.Unload(ctx, domain.ToolMetadata{Name: "echo"}))
}
