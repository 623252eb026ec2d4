package domain

import "context"

// ToolLoader loads and unloads tool implementations for a provider.
// Loaders are registered with the registry keyed by provider name.
type ToolLoader interface {
	// Load resolves the live definition for the tool. A non-empty returned
	// definition refreshes the registry's advertised metadata.
	Load(ctx context.Context, meta ToolMetadata) (ToolDefinition, error)
	// Unload releases the tool. Unloading an unloaded tool is a no-op.
	Unload(ctx context.Context, meta ToolMetadata) error
	// ListAvailable returns the tool names the provider can currently serve.
	ListAvailable(ctx context.Context) ([]string, error)
}
