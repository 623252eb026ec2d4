package registry

import (
	"fmt"
	"slices"

	"mcpq/internal/domain"
)

// CheckPermissions evaluates whether the tool may be dispatched under the
// given context. It is pure and side-effect free: the result is an advisory
// decision, and enforcement stays with the caller. Every applicable failing
// rule contributes a reason so callers can present a complete explanation.
func (r *Registry) CheckPermissions(toolID string, execCtx domain.ExecutionContext) domain.PermissionDecision {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	if !ok {
		r.mu.Unlock()
		return domain.PermissionDecision{Reasons: []string{"tool not found"}}
	}
	snapshot := *meta
	r.mu.Unlock()

	var reasons []string
	if !snapshot.Enabled {
		reasons = append(reasons, "Tool is disabled")
	}
	if snapshot.Provider.TrustLevel == domain.TrustUntrusted {
		reasons = append(reasons, "Tool provider is untrusted")
	}
	if len(snapshot.Security.AllowedRoles) > 0 && !slices.Contains(snapshot.Security.AllowedRoles, execCtx.UserRole) {
		role := execCtx.UserRole
		if role == "" {
			role = "none"
		}
		reasons = append(reasons, fmt.Sprintf("User role %s not allowed", role))
	}
	for _, required := range snapshot.Security.RequiredPermissions {
		if !slices.Contains(execCtx.Permissions, required) {
			reasons = append(reasons, fmt.Sprintf("Missing required permission %s", required))
		}
	}
	if execCtx.Environment != "" && slices.Contains(snapshot.Security.AccessRestrictions, execCtx.Environment) {
		reasons = append(reasons, fmt.Sprintf("Access restricted in environment %s", execCtx.Environment))
	}

	return domain.PermissionDecision{
		Allowed: len(reasons) == 0,
		Reasons: reasons,
	}
}
