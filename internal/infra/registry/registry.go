package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpq/internal/domain"
)

// Config holds registry defaults applied to new registrations.
type Config struct {
	// DefaultProviderName labels registrations that declare no provider.
	DefaultProviderName string
	// DefaultTrustLevel applies when the provider declares no trust level.
	DefaultTrustLevel domain.TrustLevel
}

func (c Config) withDefaults() Config {
	if c.DefaultProviderName == "" {
		c.DefaultProviderName = "mcp"
	}
	if c.DefaultTrustLevel == "" {
		c.DefaultTrustLevel = domain.DefaultTrustLevel
	}
	return c
}

// Options configures registry collaborators.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	Events  domain.RegistryEventEmitter
}

// RegisterOptions tunes a single registration.
type RegisterOptions struct {
	// Overwrite removes a prior registration with the same name instead of
	// failing. The prior id is freed, never aliased; the new registration
	// always yields a fresh id.
	Overwrite bool
	// AutoLoad invokes the load path as part of registration. A load failure
	// does not roll back the registration; the metadata stays registered
	// with Loaded left false.
	AutoLoad       bool
	Category       string
	Tags           []string
	Permissions    []string
	Provider       *domain.ToolProvider
	CustomSecurity *domain.SecurityPolicy
}

// Registry owns the catalog of invocable tools, their governance metadata,
// loader plugins, and usage statistics. It performs no dispatch itself.
type Registry struct {
	cfg     Config
	logger  *zap.Logger
	metrics domain.Metrics
	events  domain.RegistryEventEmitter

	mu      sync.Mutex
	tools   map[string]*domain.ToolMetadata
	byName  map[string]string
	loaders map[string]domain.ToolLoader
	now     func() time.Time
}

// New constructs an empty registry.
func New(cfg Config, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("registry"),
		metrics: opts.Metrics,
		events:  opts.Events,
		tools:   make(map[string]*domain.ToolMetadata),
		byName:  make(map[string]string),
		loaders: make(map[string]domain.ToolLoader),
		now:     time.Now,
	}
}

// RegisterLoader installs the loader serving the given provider name.
func (r *Registry) RegisterLoader(provider string, loader domain.ToolLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[provider] = loader
}

// RegisterTool validates and registers a tool definition, returning the
// registry-assigned id. Registration and loading are independent lifecycle
// steps: with AutoLoad set, a load failure leaves the tool registered but
// unloaded.
func (r *Registry) RegisterTool(ctx context.Context, def domain.ToolDefinition, opts RegisterOptions) (string, error) {
	if err := validateDefinition(def); err != nil {
		return "", err
	}

	provider := domain.ToolProvider{
		Name:       r.cfg.DefaultProviderName,
		TrustLevel: r.cfg.DefaultTrustLevel,
	}
	if opts.Provider != nil {
		provider = *opts.Provider
		if provider.TrustLevel == "" {
			provider.TrustLevel = r.cfg.DefaultTrustLevel
		}
	}
	security := domain.SecurityPolicy{}
	if opts.CustomSecurity != nil {
		security = *opts.CustomSecurity
	}

	r.mu.Lock()
	if existingID, ok := r.byName[def.Name]; ok {
		if !opts.Overwrite {
			r.mu.Unlock()
			return "", fmt.Errorf("%w: %s", domain.ErrDuplicateTool, def.Name)
		}
		delete(r.tools, existingID)
		delete(r.byName, def.Name)
	}

	meta := &domain.ToolMetadata{
		ID:          uuid.NewString(),
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Version:     def.Version,
		Category:    opts.Category,
		Tags:        append([]string(nil), opts.Tags...),
		Permissions: append([]string(nil), opts.Permissions...),
		Provider:    provider,
		Security:    security,
		Enabled:     true,
		Validated:   true,
	}
	r.tools[meta.ID] = meta
	r.byName[meta.Name] = meta.ID
	r.mu.Unlock()

	r.logger.Info("tool registered",
		zap.String("toolId", meta.ID),
		zap.String("tool", meta.Name),
		zap.String("provider", provider.Name),
		zap.String("trustLevel", string(provider.TrustLevel)),
	)
	r.emit(domain.RegistryEvent{
		Kind:     domain.RegistryEventToolRegistered,
		ToolID:   meta.ID,
		ToolName: meta.Name,
	})

	if opts.AutoLoad {
		if err := r.LoadTool(ctx, meta.ID); err != nil {
			r.logger.Warn("auto-load failed, tool remains registered",
				zap.String("toolId", meta.ID),
				zap.String("tool", meta.Name),
				zap.Error(err),
			)
		}
	}
	return meta.ID, nil
}

// UnregisterTool removes a tool. Unknown ids return false, not an error.
func (r *Registry) UnregisterTool(toolID string) bool {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.tools, toolID)
	if r.byName[meta.Name] == toolID {
		delete(r.byName, meta.Name)
	}
	r.mu.Unlock()

	r.emit(domain.RegistryEvent{
		Kind:     domain.RegistryEventToolUnregistered,
		ToolID:   toolID,
		ToolName: meta.Name,
	})
	return true
}

// LoadTool resolves the tool's provider loader and loads it. A non-empty
// definition returned by the loader refreshes the advertised metadata.
func (r *Registry) LoadTool(ctx context.Context, toolID string) error {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}
	loader, ok := r.loaders[meta.Provider.Name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNoLoaderFound, meta.Provider.Name)
	}
	snapshot := *meta
	r.mu.Unlock()

	def, err := loader.Load(ctx, snapshot)
	if err != nil {
		return domain.E(domain.CodeUnavailable, "registry.LoadTool", fmt.Sprintf("load tool %s: %v", snapshot.Name, err), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok = r.tools[toolID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}
	if def.Description != "" {
		meta.Description = def.Description
	}
	if len(def.InputSchema) > 0 {
		meta.InputSchema = def.InputSchema
	}
	if def.Version != "" {
		meta.Version = def.Version
	}
	meta.Loaded = true
	return nil
}

// UnloadTool releases a loaded tool. Unloading an unloaded tool succeeds.
func (r *Registry) UnloadTool(ctx context.Context, toolID string) error {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}
	if !meta.Loaded {
		r.mu.Unlock()
		return nil
	}
	loader, ok := r.loaders[meta.Provider.Name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNoLoaderFound, meta.Provider.Name)
	}
	snapshot := *meta
	r.mu.Unlock()

	if err := loader.Unload(ctx, snapshot); err != nil {
		return domain.E(domain.CodeUnavailable, "registry.UnloadTool", fmt.Sprintf("unload tool %s: %v", snapshot.Name, err), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if meta, ok := r.tools[toolID]; ok {
		meta.Loaded = false
	}
	return nil
}

// SetToolEnabled flips a tool's enablement. Returns false for unknown ids.
func (r *Registry) SetToolEnabled(toolID string, enabled bool) bool {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := meta.Enabled != enabled
	meta.Enabled = enabled
	name := meta.Name
	r.mu.Unlock()

	if changed {
		r.emit(domain.RegistryEvent{
			Kind:     domain.RegistryEventToolStatusChanged,
			ToolID:   toolID,
			ToolName: name,
			Enabled:  &enabled,
		})
	}
	return true
}

// GetTool returns a copy of the tool's metadata.
func (r *Registry) GetTool(toolID string) (domain.ToolMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.tools[toolID]
	if !ok {
		return domain.ToolMetadata{}, false
	}
	return *meta, true
}

// GetToolByName resolves a tool by its human name.
func (r *Registry) GetToolByName(name string) (domain.ToolMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return domain.ToolMetadata{}, false
	}
	return *r.tools[id], true
}

// ListTools returns copies of all registered tool metadata.
func (r *Registry) ListTools() []domain.ToolMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ToolMetadata, 0, len(r.tools))
	for _, meta := range r.tools {
		out = append(out, *meta)
	}
	return out
}

// RecordExecution folds one execution outcome into the tool's running
// statistics. The registry retains only the aggregates; when auditing is
// required the full context and result are published for an external
// collaborator to persist.
func (r *Registry) RecordExecution(toolID string, execCtx domain.ExecutionContext, result domain.ExecutionResult) error {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, toolID)
	}

	prevCount := meta.UsageCount
	meta.UsageCount++
	if result.Success {
		meta.SuccessCount++
	} else {
		meta.ErrorCount++
	}
	total := time.Duration(prevCount)*meta.AverageExecutionTime + result.ExecutionTime
	meta.AverageExecutionTime = total / time.Duration(meta.UsageCount)
	meta.LastUsedAt = r.now()

	name := meta.Name
	audited := meta.Security.RequiresAuditing
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveToolExecution(name, result.ExecutionTime, result.Success)
	}
	if audited {
		r.emit(domain.RegistryEvent{
			Kind:     domain.RegistryEventExecutionLogged,
			ToolID:   toolID,
			ToolName: name,
			Context:  &execCtx,
			Result:   &result,
			LoggedAt: r.now(),
		})
	}
	return nil
}

// Statistics aggregates counts from the live metadata collection on demand.
func (r *Registry) Statistics() domain.RegistryStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := domain.RegistryStatistics{TotalTools: len(r.tools)}
	for _, meta := range r.tools {
		if meta.Loaded {
			stats.LoadedTools++
		}
		if meta.Enabled {
			stats.EnabledTools++
		}
		stats.TotalExecutions += meta.UsageCount
		stats.TotalErrors += meta.ErrorCount
	}
	return stats
}

// Reset clears all tools and loaders, leaving the registry observably
// identical to a freshly constructed instance.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]*domain.ToolMetadata)
	r.byName = make(map[string]string)
	r.loaders = make(map[string]domain.ToolLoader)
}

func (r *Registry) emit(event domain.RegistryEvent) {
	if r.events == nil {
		return
	}
	r.events.EmitRegistryEvent(event)
}
