package domain

import "time"

// QueueEventKind labels request-queue lifecycle events.
type QueueEventKind string

const (
	QueueEventEnqueued  QueueEventKind = "request-queue:enqueued"
	QueueEventCompleted QueueEventKind = "request-queue:completed"
	QueueEventFailed    QueueEventKind = "request-queue:failed"
)

// QueueEvent is published by the queue on request lifecycle transitions.
type QueueEvent struct {
	Kind      QueueEventKind
	RequestID string
	Method    RequestMethod
	Priority  Priority
	Err       error
}

// QueueEventEmitter receives queue events. Emission must never block.
type QueueEventEmitter interface {
	EmitQueueEvent(event QueueEvent)
}

// RegistryEventKind labels tool-registry lifecycle events.
type RegistryEventKind string

const (
	RegistryEventToolRegistered    RegistryEventKind = "tool-registry:tool-registered"
	RegistryEventToolUnregistered  RegistryEventKind = "tool-registry:tool-unregistered"
	RegistryEventToolStatusChanged RegistryEventKind = "tool-registry:tool-status-changed"
	RegistryEventExecutionLogged   RegistryEventKind = "tool-registry:execution-logged"
)

// RegistryEvent is published by the registry. Execution-logged events carry
// the full context and result for an external audit collaborator.
type RegistryEvent struct {
	Kind     RegistryEventKind
	ToolID   string
	ToolName string
	Enabled  *bool
	Context  *ExecutionContext
	Result   *ExecutionResult
	LoggedAt time.Time
}

// RegistryEventEmitter receives registry events. Emission must never block.
type RegistryEventEmitter interface {
	EmitRegistryEvent(event RegistryEvent)
}
