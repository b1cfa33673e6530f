package tool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// maxFileBytes caps read_file output to keep tool results prompt-sized.
const maxFileBytes = 64 * 1024

// maxCommandBytes caps execute_command output.
const maxCommandBytes = 16 * 1024

// RegisterBuiltins registers the built-in tools. Workspace is the root
// directory read_file is confined to; allow overrides the default
// execute_command allowlist when non-nil.
func RegisterBuiltins(r *Registry, workspace string, allow []string) error {
	if allow == nil {
		allow = defaultAllowedCommands
	}
	builtins := []Tool{
		&calculateTool{},
		&readFileTool{workspace: workspace},
		&executeCommandTool{allow: allow},
		&webSearchTool{},
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// calculateTool evaluates arithmetic expressions.
type calculateTool struct{}

func (*calculateTool) Definition() Definition {
	return Definition{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression. Supports +, -, *, /, %, ^, and parentheses.",
		Params: []Param{
			{Name: "expression", Type: TypeString, Description: "The expression to evaluate, e.g. \"(2 + 3) * 4\".", Required: true},
		},
	}
}

func (*calculateTool) Execute(_ context.Context, args map[string]any) (string, error) {
	expr, _ := args["expression"].(string)
	v, err := evalExpr(expr)
	if err != nil {
		return "", fmt.Errorf("calculate %q: %w", expr, err)
	}
	return formatNumber(v), nil
}

// readFileTool reads a text file from within the workspace.
type readFileTool struct {
	workspace string
}

func (*readFileTool) Definition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a text file from the workspace and return its contents.",
		Params: []Param{
			{Name: "path", Type: TypeString, Description: "File path relative to the workspace root.", Required: true},
		},
	}
}

func (t *readFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	rel, _ := args["path"].(string)

	// Confine to the workspace: resolve the path and reject escapes.
	abs := filepath.Join(t.workspace, filepath.Clean("/"+rel))
	if t.workspace != "" {
		root := filepath.Clean(t.workspace) + string(filepath.Separator)
		if !strings.HasPrefix(abs, root) && abs != filepath.Clean(t.workspace) {
			return "", fmt.Errorf("read_file: path %q escapes workspace", rel)
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	if len(data) > maxFileBytes {
		return string(data[:maxFileBytes]) + "\n...(truncated)", nil
	}
	return string(data), nil
}

// defaultAllowedCommands is the default set of binaries execute_command
// may run. Commands run directly (no shell), so no pipes, redirection,
// or expansion.
var defaultAllowedCommands = []string{"cat", "date", "echo", "find", "grep", "ls", "pwd"}

// executeCommandTool runs an allowlisted command.
type executeCommandTool struct {
	allow []string
}

func (t *executeCommandTool) Definition() Definition {
	return Definition{
		Name:        "execute_command",
		Description: "Run a read-only shell command. Allowed: " + strings.Join(t.allow, ", ") + ". No pipes or redirection.",
		Params: []Param{
			{Name: "command", Type: TypeString, Description: "The command line to run, e.g. \"ls -la\".", Required: true},
		},
	}
}

func (t *executeCommandTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	cmdline, _ := args["command"].(string)
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return "", fmt.Errorf("execute_command: empty command")
	}
	if !slices.Contains(t.allow, fields[0]) {
		return "", fmt.Errorf("execute_command: %w: %s", ErrNotAllowed, fields[0])
	}

	out, err := exec.CommandContext(ctx, fields[0], fields[1:]...).CombinedOutput()
	if len(out) > maxCommandBytes {
		out = append(out[:maxCommandBytes], []byte("\n...(truncated)")...)
	}
	if err != nil {
		return "", fmt.Errorf("execute_command: %s: %w\n%s", fields[0], err, out)
	}
	return string(out), nil
}

// webSearchTool is a placeholder until a search provider is wired in. It is
// registered so models learn the calling convention, but reports that no
// provider is configured.
type webSearchTool struct{}

func (*webSearchTool) Definition() Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web for current information.",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "The search query.", Required: true},
		},
	}
}

func (*webSearchTool) Execute(_ context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	return fmt.Sprintf("web_search is not configured on this server; no results for %q. Answer from existing knowledge and say the information may be outdated.", query), nil
}
