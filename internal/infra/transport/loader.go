package transport

import (
	"context"
	"fmt"

	"mcpq/internal/domain"
)

// Loader serves the "mcp" provider: tool definitions are resolved live from
// the transport's tool listing.
type Loader struct {
	transport domain.Transport
}

// NewLoader constructs a loader backed by the given transport.
func NewLoader(transport domain.Transport) *Loader {
	return &Loader{transport: transport}
}

func (l *Loader) Load(ctx context.Context, meta domain.ToolMetadata) (domain.ToolDefinition, error) {
	defs, err := l.transport.ListTools(ctx)
	if err != nil {
		return domain.ToolDefinition{}, fmt.Errorf("list tools: %w", err)
	}
	for _, def := range defs {
		if def.Name == meta.Name {
			return def, nil
		}
	}
	return domain.ToolDefinition{}, fmt.Errorf("%w: %s not advertised by server", domain.ErrToolNotFound, meta.Name)
}

func (l *Loader) Unload(ctx context.Context, meta domain.ToolMetadata) error {
	// Nothing to release: the server owns the tool implementation.
	return nil
}

func (l *Loader) ListAvailable(ctx context.Context) ([]string, error) {
	defs, err := l.transport.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names, nil
}

var _ domain.ToolLoader = (*Loader)(nil)
