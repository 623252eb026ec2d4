package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const clientName = "mcpq"

// StdioOptions describes the MCP server command to launch.
type StdioOptions struct {
	Cmd    []string
	Env    map[string]string
	Cwd    string
	Logger *zap.Logger
}

// ConnectStdio launches the server command as a child process and returns a
// transport over its stdio MCP session. The child's lifetime is bound to the
// session: closing the transport terminates it.
func ConnectStdio(ctx context.Context, version string, opts StdioOptions) (*SessionTransport, error) {
	if len(opts.Cmd) == 0 {
		return nil, errors.New("cmd is required for stdio transport")
	}

	cmd := exec.CommandContext(ctx, opts.Cmd[0], opts.Cmd[1:]...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = append(os.Environ(), formatEnv(opts.Env)...)

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: version}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect stdio: %w", err)
	}
	return NewSessionTransport(session, opts.Logger), nil
}

func formatEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	return out
}
