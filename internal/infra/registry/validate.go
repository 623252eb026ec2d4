package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"mcpq/internal/domain"
)

// validateDefinition rejects definitions the registry cannot govern: a tool
// needs a name and a resolvable JSON schema for its input.
func validateDefinition(def domain.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidToolDefinition)
	}
	if len(def.InputSchema) == 0 {
		return fmt.Errorf("%w: input schema is required", domain.ErrInvalidToolDefinition)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
		return fmt.Errorf("%w: decode input schema: %v", domain.ErrInvalidToolDefinition, err)
	}
	if _, err := schema.Resolve(nil); err != nil {
		return fmt.Errorf("%w: resolve input schema: %v", domain.ErrInvalidToolDefinition, err)
	}
	return nil
}
