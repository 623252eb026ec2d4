package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"mcpq/internal/domain"
	"mcpq/internal/infra/config"
	"mcpq/internal/infra/queue"
	"mcpq/internal/infra/registry"
	"mcpq/internal/infra/telemetry"
	"mcpq/internal/infra/transport"
)

var searchSchema = json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)

func newManagerFixture(t *testing.T, ft *fakeTransport, policies []config.ToolPolicy) *Manager {
	t.Helper()
	reg := registry.New(registry.Config{}, registry.Options{})
	reg.RegisterLoader("mcp", transport.NewLoader(ft))
	q := queue.New(ft, queue.Config{
		MaxSize:         10,
		MaxConcurrent:   2,
		ProcessInterval: 5 * time.Millisecond,
		EnablePriority:  true,
		RequestTimeout:  time.Second,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		RetryMaxDelay:   10 * time.Millisecond,
	}, queue.Options{})
	m := NewManager(ft, q, reg, ManagerOptions{Policies: policies})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// newAuditedFixture wires an event recorder and registers search as an
// audited tool, so execution-logged events can be inspected.
func newAuditedFixture(t *testing.T, ft *fakeTransport) (*Manager, *auditRecorder) {
	t.Helper()
	audit := &auditRecorder{}
	reg := registry.New(registry.Config{}, registry.Options{Events: audit})
	reg.RegisterLoader("mcp", transport.NewLoader(ft))
	q := queue.New(ft, queue.Config{
		MaxSize:         10,
		MaxConcurrent:   2,
		ProcessInterval: 5 * time.Millisecond,
		RequestTimeout:  time.Second,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		RetryMaxDelay:   10 * time.Millisecond,
	}, queue.Options{})
	m := NewManager(ft, q, reg, ManagerOptions{Policies: []config.ToolPolicy{{
		Name:     "search",
		Security: &domain.SecurityPolicy{RequiresAuditing: true},
	}}})
	t.Cleanup(func() { _ = m.Close() })
	return m, audit
}

func TestManager_CallToolEndToEnd(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
		results:  map[string]json.RawMessage{"search": json.RawMessage(`{"hits":3}`)},
	}
	enabled := true
	m := newManagerFixture(t, ft, []config.ToolPolicy{{
		Name:       "search",
		Enabled:    &enabled,
		TrustLevel: string(domain.TrustMedium),
		Category:   "query",
	}})

	ctx := context.Background()
	require.False(t, m.IsReady())
	require.NoError(t, m.RefreshToolRegistry(ctx))
	require.True(t, m.IsReady())

	tools := m.GetRegisteredTools()
	require.Len(t, tools, 1)
	require.Equal(t, "search", tools[0].Name)
	require.True(t, tools[0].Loaded)
	require.Equal(t, domain.TrustMedium, tools[0].Provider.TrustLevel)

	high := domain.PriorityHigh
	result, err := m.CallTool(ctx, "search", map[string]any{"q": "x"}, CallOptions{
		RequestOptions: domain.RequestOptions{Priority: &high},
		UserID:         "alice",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"hits":3}`, string(result))

	meta := m.GetRegisteredTools()[0]
	require.Equal(t, int64(1), meta.UsageCount)
	require.Equal(t, int64(1), meta.SuccessCount)
	require.Equal(t, int64(0), meta.ErrorCount)
	require.Greater(t, meta.AverageExecutionTime, time.Duration(0))

	stats := m.GetStatistics()
	require.Equal(t, uint64(1), stats.Queue.CompletedRequests)
	require.Equal(t, int64(1), stats.Registry.TotalExecutions)
}

func TestManager_CallToolDeniedBeforeEnqueue(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
	}
	m := newManagerFixture(t, ft, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshToolRegistry(ctx))

	meta := m.GetRegisteredTools()[0]
	require.True(t, m.SetToolEnabled(meta.ID, false))

	_, err := m.CallTool(ctx, "search", nil, CallOptions{UserID: "alice"})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.ErrorContains(t, err, "Tool is disabled")

	// The transport never saw the call, and no execution was recorded.
	require.Equal(t, 0, ft.callCount())
	meta = m.GetRegisteredTools()[0]
	require.Equal(t, int64(0), meta.UsageCount)
}

func TestManager_CallToolRecordsFailure(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
		failWith: "search backend down",
	}
	m := newManagerFixture(t, ft, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshToolRegistry(ctx))

	_, err := m.CallTool(ctx, "search", nil, CallOptions{})
	require.ErrorContains(t, err, "search backend down")

	meta := m.GetRegisteredTools()[0]
	require.Equal(t, int64(1), meta.UsageCount)
	require.Equal(t, int64(1), meta.ErrorCount)
	require.Equal(t, int64(0), meta.SuccessCount)
}

func TestManager_CallToolCarriesTraceMetadataToAudit(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
		results:  map[string]json.RawMessage{"search": json.RawMessage(`{"hits":1}`)},
	}
	m, audit := newAuditedFixture(t, ft)
	require.NoError(t, m.RefreshToolRegistry(context.Background()))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	_, err = m.CallTool(ctx, "search", map[string]any{"q": "x"}, CallOptions{UserID: "alice"})
	require.NoError(t, err)

	logged := audit.byKind(domain.RegistryEventExecutionLogged)
	require.Len(t, logged, 1)
	execCtx := logged[0].Context
	require.NotNil(t, execCtx)
	require.NotEmpty(t, execCtx.ExecutionID)
	require.Equal(t, traceID.String(), execCtx.Metadata["traceId"])
	require.Equal(t, spanID.String(), execCtx.Metadata["spanId"])
}

func TestManager_CallToolReusesCallerRequestID(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
	}
	m, audit := newAuditedFixture(t, ft)
	require.NoError(t, m.RefreshToolRegistry(context.Background()))

	ctx := telemetry.WithRequestMeta(context.Background(), telemetry.RequestMeta{RequestID: "req-42"})
	_, err := m.CallTool(ctx, "search", nil, CallOptions{})
	require.NoError(t, err)

	logged := audit.byKind(domain.RegistryEventExecutionLogged)
	require.Len(t, logged, 1)
	require.Equal(t, "req-42", logged[0].Context.ExecutionID)
	// No span was active, so no trace ids are attached.
	require.Empty(t, logged[0].Context.Metadata)
}

func TestManager_UnregisteredToolBypassesGovernance(t *testing.T) {
	ft := &fakeTransport{
		results: map[string]json.RawMessage{"adhoc": json.RawMessage(`{"ok":true}`)},
	}
	m := newManagerFixture(t, ft, nil)

	result, err := m.CallTool(context.Background(), "adhoc", nil, CallOptions{})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))
}

func TestManager_ReadResourceAndGetPrompt(t *testing.T) {
	ft := &fakeTransport{}
	m := newManagerFixture(t, ft, nil)
	ctx := context.Background()

	resource, err := m.ReadResource(ctx, "file:///readme", CallOptions{})
	require.NoError(t, err)
	require.JSONEq(t, `{"uri":"file:///readme"}`, string(resource))

	prompt, err := m.GetPrompt(ctx, "summarize", map[string]string{"lang": "en"}, CallOptions{})
	require.NoError(t, err)
	require.JSONEq(t, `{"prompt":"summarize"}`, string(prompt))
}

func TestManager_ExecuteBatch(t *testing.T) {
	ft := &fakeTransport{
		results: map[string]json.RawMessage{"a": json.RawMessage(`{"n":1}`)},
	}
	m := newManagerFixture(t, ft, nil)

	results, err := m.ExecuteBatch(context.Background(), []domain.BatchRequest{
		{Method: domain.MethodCallTool, Params: domain.RequestParams{ToolName: "a"}},
		{Method: "bogus/method", Params: domain.RequestParams{}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.ErrorIs(t, results[1].Err, domain.ErrUnsupportedMethod)
}

func TestManager_RefreshReconcilesRegistry(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{
			{Name: "search", InputSchema: searchSchema},
			{Name: "fetch", InputSchema: searchSchema},
		},
	}
	m := newManagerFixture(t, ft, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshToolRegistry(ctx))
	require.Len(t, m.GetRegisteredTools(), 2)

	// The server stops advertising fetch; the next refresh drops it and keeps
	// search registered.
	ft.setToolDefs([]domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}})
	require.NoError(t, m.RefreshToolRegistry(ctx))

	tools := m.GetRegisteredTools()
	require.Len(t, tools, 1)
	require.Equal(t, "search", tools[0].Name)
}

func TestManager_RefreshFailureCarriesCode(t *testing.T) {
	ft := &fakeTransport{listErr: errors.New("session lost")}
	m := newManagerFixture(t, ft, nil)

	err := m.RefreshToolRegistry(context.Background())
	require.ErrorContains(t, err, "session lost")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestManager_ApplyPoliciesTogglesEnablement(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
	}
	m := newManagerFixture(t, ft, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshToolRegistry(ctx))
	require.True(t, m.GetRegisteredTools()[0].Enabled)

	disabled := false
	m.ApplyPolicies([]config.ToolPolicy{{Name: "search", Enabled: &disabled}})
	require.False(t, m.GetRegisteredTools()[0].Enabled)

	_, err := m.CallTool(ctx, "search", nil, CallOptions{})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	enabled := true
	m.ApplyPolicies([]config.ToolPolicy{{Name: "search", Enabled: &enabled}})
	require.True(t, m.GetRegisteredTools()[0].Enabled)
}

func TestManager_WatchConfigAppliesUpdates(t *testing.T) {
	ft := &fakeTransport{
		toolDefs: []domain.ToolDefinition{{Name: "search", InputSchema: searchSchema}},
	}
	m := newManagerFixture(t, ft, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.RefreshToolRegistry(ctx))

	updates := make(chan config.Update, 1)
	go m.WatchConfig(ctx, updates)

	disabled := false
	updates <- config.Update{
		Config:   config.Config{Tools: []config.ToolPolicy{{Name: "search", Enabled: &disabled}}},
		Revision: 2,
	}

	require.Eventually(t, func() bool {
		return !m.GetRegisteredTools()[0].Enabled
	}, time.Second, 5*time.Millisecond)
}

func TestManager_CloseShutsDownCollaborators(t *testing.T) {
	ft := &fakeTransport{}
	m := newManagerFixture(t, ft, nil)

	require.True(t, m.IsConnected())
	require.NoError(t, m.Close())
	require.False(t, m.IsConnected())
	require.False(t, m.IsReady())
	require.Empty(t, m.GetRegisteredTools())

	_, err := m.CallTool(context.Background(), "anything", nil, CallOptions{})
	require.ErrorIs(t, err, domain.ErrQueueClosed)

	// Close is idempotent.
	require.NoError(t, m.Close())
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    int
	toolDefs []domain.ToolDefinition
	results  map[string]json.RawMessage
	failWith string
	listErr  error
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	failWith := f.failWith
	result, ok := f.results[name]
	f.mu.Unlock()

	if failWith != "" {
		return nil, &domain.Error{Code: domain.CodeInternal, Op: "fake.CallTool", Message: failWith}
	}
	if !ok {
		result = json.RawMessage(`{}`)
	}
	return result, nil
}

func (f *fakeTransport) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"uri": uri})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (f *fakeTransport) GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"prompt": name})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ToolDefinition(nil), f.toolDefs...), nil
}

func (f *fakeTransport) setToolDefs(defs []domain.ToolDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolDefs = defs
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type auditRecorder struct {
	mu     sync.Mutex
	events []domain.RegistryEvent
}

func (r *auditRecorder) EmitRegistryEvent(event domain.RegistryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *auditRecorder) byKind(kind domain.RegistryEventKind) []domain.RegistryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.RegistryEvent
	for _, event := range r.events {
		if event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}
