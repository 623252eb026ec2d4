package domain

// RequestMethod identifies a remote MCP operation the queue can dispatch.
type RequestMethod string

const (
	// MethodCallTool invokes a named tool on the server.
	MethodCallTool RequestMethod = "tools/call"
	// MethodReadResource reads a resource by URI.
	MethodReadResource RequestMethod = "resources/read"
	// MethodGetPrompt fetches a prompt by name.
	MethodGetPrompt RequestMethod = "prompts/get"
)

// MethodSupported reports whether the queue knows how to dispatch method.
func MethodSupported(method RequestMethod) bool {
	switch method {
	case MethodCallTool, MethodReadResource, MethodGetPrompt:
		return true
	default:
		return false
	}
}
