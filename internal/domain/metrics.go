package domain

import "time"

// RejectReason describes why an enqueue was refused.
type RejectReason string

const (
	// RejectQueueFull indicates the queue was at capacity.
	RejectQueueFull RejectReason = "queue_full"
	// RejectUnsupportedMethod indicates an unknown request method.
	RejectUnsupportedMethod RejectReason = "unsupported_method"
	// RejectQueueClosed indicates the queue was already destroyed.
	RejectQueueClosed RejectReason = "queue_closed"
)

// Metrics records operational metrics for the queue and registry.
type Metrics interface {
	ObserveDispatch(method RequestMethod, duration time.Duration, err error)
	ObserveRetry(method RequestMethod)
	ObserveEnqueueRejected(reason RejectReason)
	SetQueueDepth(count int)
	SetActiveRequests(count int)
	ObserveToolExecution(tool string, duration time.Duration, success bool)
}
