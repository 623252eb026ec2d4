package domain

import (
	"encoding/json"
	"time"
)

// ExecutionContext identifies one tool execution for permission checks and
// usage recording. It is a value object; the registry never retains it.
type ExecutionContext struct {
	ExecutionID string            `json:"executionId"`
	UserID      string            `json:"userId,omitempty"`
	UserRole    string            `json:"userRole,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Environment string            `json:"environment,omitempty"`
	RequestedAt time.Time         `json:"requestedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ExecutionError describes a failed execution for recording purposes.
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExecutionResult is the outcome of one tool execution.
type ExecutionResult struct {
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	Err           *ExecutionError `json:"error,omitempty"`
	ExecutionTime time.Duration   `json:"executionTime"`
}
