package domain

import (
	"encoding/json"
	"time"
)

// Priority orders pending requests. Higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// RequestStatus labels the lifecycle state of a queued request.
// Transitions are monotonic: a terminal status never regresses.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusActive    RequestStatus = "active"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
	StatusCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RequestParams carries the method-specific arguments of a queued request.
// Only the fields relevant to the request's method are consulted.
type RequestParams struct {
	ToolName   string
	Arguments  map[string]any
	URI        string
	PromptName string
	PromptArgs map[string]string
}

// RequestOptions overrides queue defaults for a single request.
type RequestOptions struct {
	Priority   *Priority
	Tags       []string
	MaxRetries *int
	Timeout    *time.Duration
}

// BatchRequest is one entry of an ExecuteBatch call.
type BatchRequest struct {
	Method  RequestMethod
	Params  RequestParams
	Options RequestOptions
}

// BatchResult reports the outcome of one batch entry. Per-entry failures
// are reported inline, never raised.
type BatchResult struct {
	Success bool
	Result  json.RawMessage
	Err     error
}

// RateLimitUsage describes the current rate-limit window.
type RateLimitUsage struct {
	Current int
	Limit   int
	ResetAt time.Time
}

// QueueStatus is a point-in-time view of the queue.
type QueueStatus struct {
	QueueSize      int
	ActiveRequests int
	IsProcessing   bool
	RateLimit      *RateLimitUsage
}

// QueueStatistics aggregates dispatch outcomes since construction.
type QueueStatistics struct {
	TotalRequests      uint64
	CompletedRequests  uint64
	FailedRequests     uint64
	AverageProcessTime time.Duration
}
