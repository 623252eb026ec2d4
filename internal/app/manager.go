package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpq/internal/domain"
	"mcpq/internal/infra/config"
	"mcpq/internal/infra/queue"
	"mcpq/internal/infra/registry"
	"mcpq/internal/infra/telemetry"
)

// CallOptions tunes one facade call: queue overrides plus the caller
// identity evaluated by the registry's permission rules.
type CallOptions struct {
	domain.RequestOptions
	UserID      string
	UserRole    string
	Permissions []string
	Environment string
}

// Statistics merges queue and registry aggregates.
type Statistics struct {
	Queue    domain.QueueStatistics
	Registry domain.RegistryStatistics
}

// ManagerOptions configures facade collaborators.
type ManagerOptions struct {
	Logger   *zap.Logger
	Policies []config.ToolPolicy
}

// Manager is the ergonomic entry point over the queue and registry. It
// decides whether a call is permitted before enqueueing it and records the
// outcome with the registry afterwards.
type Manager struct {
	logger    *zap.Logger
	transport domain.Transport
	queue     *queue.RequestQueue
	registry  *registry.Registry

	mu        sync.Mutex
	policies  map[string]config.ToolPolicy
	refreshed bool
	closed    bool
}

// NewManager wires the facade. The queue and registry are injected, never
// reached through ambient state.
func NewManager(transport domain.Transport, q *queue.RequestQueue, reg *registry.Registry, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:    logger.Named("manager"),
		transport: transport,
		queue:     q,
		registry:  reg,
		policies:  make(map[string]config.ToolPolicy),
	}
	for _, policy := range opts.Policies {
		m.policies[policy.Name] = policy
	}
	return m
}

// CallTool enqueues a tools/call after the registry's permission decision
// allows it, waits for completion, and records the execution.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any, opts CallOptions) (json.RawMessage, error) {
	reqMeta, ok := telemetry.RequestMetaFromContext(ctx)
	if !ok || reqMeta.RequestID == "" {
		reqMeta = telemetry.BuildRequestMeta(ctx, telemetry.NewRequestID())
		ctx = telemetry.WithRequestMeta(ctx, reqMeta)
	}
	execCtx := domain.ExecutionContext{
		ExecutionID: reqMeta.RequestID,
		UserID:      opts.UserID,
		UserRole:    opts.UserRole,
		Permissions: opts.Permissions,
		Environment: opts.Environment,
		RequestedAt: time.Now(),
		Metadata:    traceMetadata(reqMeta),
	}

	meta, registered := m.registry.GetToolByName(name)
	if registered {
		decision := m.registry.CheckPermissions(meta.ID, execCtx)
		if !decision.Allowed {
			m.logger.Warn("tool call denied",
				zap.String("tool", name),
				zap.String("requestId", reqMeta.RequestID),
				zap.String("traceId", reqMeta.TraceID),
				zap.Strings("reasons", decision.Reasons),
			)
			return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, strings.Join(decision.Reasons, "; "))
		}
	}

	ticket, err := m.queue.Enqueue(domain.MethodCallTool, domain.RequestParams{
		ToolName:  name,
		Arguments: args,
	}, opts.RequestOptions)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := ticket.Wait(ctx)
	if registered {
		m.recordExecution(meta.ID, execCtx, result, err, time.Since(start))
	}
	return result, err
}

// ReadResource enqueues a resources/read and waits for completion.
func (m *Manager) ReadResource(ctx context.Context, uri string, opts CallOptions) (json.RawMessage, error) {
	ticket, err := m.queue.Enqueue(domain.MethodReadResource, domain.RequestParams{URI: uri}, opts.RequestOptions)
	if err != nil {
		return nil, err
	}
	return ticket.Wait(ctx)
}

// GetPrompt enqueues a prompts/get and waits for completion.
func (m *Manager) GetPrompt(ctx context.Context, name string, args map[string]string, opts CallOptions) (json.RawMessage, error) {
	ticket, err := m.queue.Enqueue(domain.MethodGetPrompt, domain.RequestParams{
		PromptName: name,
		PromptArgs: args,
	}, opts.RequestOptions)
	if err != nil {
		return nil, err
	}
	return ticket.Wait(ctx)
}

// ExecuteBatch forwards to the queue; per-entry outcomes are inline.
func (m *Manager) ExecuteBatch(ctx context.Context, requests []domain.BatchRequest) ([]domain.BatchResult, error) {
	return m.queue.ExecuteBatch(ctx, requests)
}

// GetRegisteredTools lists the registry's current metadata.
func (m *Manager) GetRegisteredTools() []domain.ToolMetadata {
	return m.registry.ListTools()
}

// SetToolEnabled forwards to the registry.
func (m *Manager) SetToolEnabled(toolID string, enabled bool) bool {
	return m.registry.SetToolEnabled(toolID, enabled)
}

// RefreshToolRegistry reconciles the registry against the server's live tool
// listing: new tools are registered (with any configured policy applied) and
// loaded; tools the server no longer advertises are unregistered.
func (m *Manager) RefreshToolRegistry(ctx context.Context) error {
	defs, err := m.transport.ListTools(ctx)
	if err != nil {
		return domain.Wrap(domain.CodeUnavailable, "manager.RefreshToolRegistry", err)
	}

	advertised := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		advertised[def.Name] = struct{}{}
		if _, ok := m.registry.GetToolByName(def.Name); ok {
			continue
		}
		opts := m.registerOptionsFor(def.Name)
		id, err := m.registry.RegisterTool(ctx, def, opts)
		if err != nil {
			m.logger.Warn("skipping tool during refresh",
				zap.String("tool", def.Name),
				zap.Error(err),
			)
			continue
		}
		if policy, ok := m.policyFor(def.Name); ok && policy.Enabled != nil {
			m.registry.SetToolEnabled(id, *policy.Enabled)
		}
	}

	for _, meta := range m.registry.ListTools() {
		if _, ok := advertised[meta.Name]; !ok {
			m.registry.UnregisterTool(meta.ID)
			m.logger.Info("unregistered stale tool", zap.String("tool", meta.Name))
		}
	}

	m.mu.Lock()
	m.refreshed = true
	m.mu.Unlock()
	m.logger.Info("tool registry refreshed", zap.Int("tools", len(defs)))
	return nil
}

func (m *Manager) registerOptionsFor(name string) registry.RegisterOptions {
	opts := registry.RegisterOptions{AutoLoad: true}
	policy, ok := m.policyFor(name)
	if !ok {
		return opts
	}
	opts.Category = policy.Category
	opts.Tags = policy.Tags
	if policy.TrustLevel != "" {
		opts.Provider = &domain.ToolProvider{
			Name:       "mcp",
			TrustLevel: domain.TrustLevel(policy.TrustLevel),
		}
	}
	opts.CustomSecurity = policy.Security
	return opts
}

func (m *Manager) policyFor(name string) (config.ToolPolicy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy, ok := m.policies[name]
	return policy, ok
}

// ApplyPolicies replaces the tool policies and re-applies enablement to the
// live registry. Called on config hot-reload.
func (m *Manager) ApplyPolicies(policies []config.ToolPolicy) {
	m.mu.Lock()
	m.policies = make(map[string]config.ToolPolicy, len(policies))
	for _, policy := range policies {
		m.policies[policy.Name] = policy
	}
	m.mu.Unlock()

	for _, meta := range m.registry.ListTools() {
		if policy, ok := m.policyFor(meta.Name); ok && policy.Enabled != nil && meta.Enabled != *policy.Enabled {
			m.registry.SetToolEnabled(meta.ID, *policy.Enabled)
			m.logger.Info("tool policy applied",
				zap.String("tool", meta.Name),
				zap.Bool("enabled", *policy.Enabled),
			)
		}
	}
}

// WatchConfig applies policy updates until ctx is done.
func (m *Manager) WatchConfig(ctx context.Context, updates <-chan config.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			m.ApplyPolicies(update.Config.Tools)
		}
	}
}

// GetStatistics merges queue and registry counters.
func (m *Manager) GetStatistics() Statistics {
	return Statistics{
		Queue:    m.queue.Statistics(),
		Registry: m.registry.Statistics(),
	}
}

// IsConnected reports whether the facade still has a live transport.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// IsReady reports whether the registry has been reconciled at least once.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.refreshed
}

// Close shuts the queue down, clears the registry, and closes the transport
// when it owns one.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.queue.Close()
	m.registry.Reset()
	if closer, ok := m.transport.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
	}
	m.logger.Info("manager closed")
	return nil
}

func (m *Manager) recordExecution(toolID string, execCtx domain.ExecutionContext, result json.RawMessage, err error, elapsed time.Duration) {
	execResult := domain.ExecutionResult{
		Success:       err == nil,
		ExecutionTime: elapsed,
	}
	if err == nil {
		execResult.Result = result
	} else {
		code := string(domain.CodeInternal)
		if known, ok := domain.CodeFrom(err); ok {
			code = string(known)
		}
		execResult.Err = &domain.ExecutionError{
			Code:    code,
			Message: err.Error(),
		}
	}
	if recordErr := m.registry.RecordExecution(toolID, execCtx, execResult); recordErr != nil {
		m.logger.Warn("record execution failed",
			zap.String("toolId", toolID),
			zap.String("requestId", execCtx.ExecutionID),
			zap.Error(recordErr),
		)
	}
}

// traceMetadata exposes the active trace ids to audit subscribers.
func traceMetadata(meta telemetry.RequestMeta) map[string]string {
	if meta.TraceID == "" {
		return nil
	}
	return map[string]string{
		"traceId": meta.TraceID,
		"spanId":  meta.SpanID,
	}
}
