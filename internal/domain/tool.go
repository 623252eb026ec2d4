package domain

import (
	"encoding/json"
	"time"
)

// TrustLevel classifies a tool provider for dispatch governance.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustMedium    TrustLevel = "medium"
	TrustLow       TrustLevel = "low"
	TrustUntrusted TrustLevel = "untrusted"
)

// ToolProvider identifies where a tool came from and how much it is trusted.
type ToolProvider struct {
	Name       string     `json:"name"`
	TrustLevel TrustLevel `json:"trustLevel"`
}

// SecurityPolicy captures the governance constraints attached to a tool.
type SecurityPolicy struct {
	RequiresApproval    bool     `json:"requiresApproval"`
	RequiresAuditing    bool     `json:"requiresAuditing"`
	RequiresSandbox     bool     `json:"requiresSandbox"`
	AllowedRoles        []string `json:"allowedRoles,omitempty"`
	RequiredPermissions []string `json:"requiredPermissions,omitempty"`
	AccessRestrictions  []string `json:"accessRestrictions,omitempty"`
}

// ToolDefinition is the tool description as advertised by the remote server.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Version     string          `json:"version,omitempty"`
}

// ToolMetadata is the registry's record of a registered tool. The registry
// owns these values exclusively; callers receive copies.
type ToolMetadata struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Version     string          `json:"version,omitempty"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Provider    ToolProvider    `json:"provider"`
	Security    SecurityPolicy  `json:"security"`

	Loaded    bool `json:"isLoaded"`
	Enabled   bool `json:"isEnabled"`
	Validated bool `json:"isValidated"`

	UsageCount           int64         `json:"usageCount"`
	SuccessCount         int64         `json:"successCount"`
	ErrorCount           int64         `json:"errorCount"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime"`
	LastUsedAt           time.Time     `json:"lastUsedAt"`
}

// ToolFilter composes search predicates. All set predicates are ANDed.
type ToolFilter struct {
	NamePattern         string
	NameRegex           bool
	Category            string
	Tags                []string
	RequiredPermissions []string
	Enabled             *bool
	Loaded              *bool
}

// ToolSortKey selects the ordering used by SortTools.
type ToolSortKey string

const (
	SortByName                 ToolSortKey = "name"
	SortByUsageCount           ToolSortKey = "usageCount"
	SortByLastUsed             ToolSortKey = "lastUsed"
	SortByAverageExecutionTime ToolSortKey = "averageExecutionTime"
)

// PermissionDecision is the advisory result of a permission check.
// Enforcement is the caller's concern.
type PermissionDecision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons"`
}

// VersionStatus labels the outcome of a version compatibility check.
type VersionStatus string

const (
	VersionCompatible   VersionStatus = "compatible"
	VersionIncompatible VersionStatus = "incompatible"
	VersionUnknown      VersionStatus = "unknown"
)

// VersionCompatibility reports a tool's version against a required minimum.
type VersionCompatibility struct {
	Status  VersionStatus `json:"status"`
	Current string        `json:"current,omitempty"`
	Minimum string        `json:"minimum"`
}

// RegistryStatistics aggregates counts over the live metadata collection.
type RegistryStatistics struct {
	TotalTools      int   `json:"totalTools"`
	LoadedTools     int   `json:"loadedTools"`
	EnabledTools    int   `json:"enabledTools"`
	TotalExecutions int64 `json:"totalExecutions"`
	TotalErrors     int64 `json:"totalErrors"`
}
