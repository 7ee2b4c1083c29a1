package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jsdzhang/moltis/internal/sandbox"
)

// WriteFileTool creates or overwrites a file, optionally through a sandbox container.
type WriteFileTool struct {
	workspace  string
	restrict   bool
	sandboxMgr sandbox.Manager
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func NewSandboxedWriteFileTool(workspace string, restrict bool, mgr sandbox.Manager) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict, sandboxMgr: mgr}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating it (and parent directories) if needed" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write to the file"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	p, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if p == "" {
		return ErrorResult("path is required")
	}

	sandboxKey := ToolSandboxKeyFromCtx(ctx)
	if t.sandboxMgr != nil && sandboxKey != "" {
		sb, err := t.sandboxMgr.Get(ctx, sandboxKey, t.workspace)
		if err == nil {
			if werr := sandbox.NewFsBridge(sb, "/workspace").WriteFile(ctx, p, content); werr != nil {
				return ErrorResult(fmt.Sprintf("failed to write file: %v", werr))
			}
			return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), p))
		}
		if err != sandbox.ErrSandboxDisabled {
			return ErrorResult(fmt.Sprintf("sandbox error: %v", err))
		}
	}

	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = t.workspace
	}
	resolved, err := resolvePath(p, workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create parent directories: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), p))
}

// ListFilesTool lists files and directories under a workspace path.
type ListFilesTool struct {
	workspace  string
	restrict   bool
	sandboxMgr sandbox.Manager
}

func NewListFilesTool(workspace string, restrict bool) *ListFilesTool {
	return &ListFilesTool{workspace: workspace, restrict: restrict}
}

func NewSandboxedListFilesTool(workspace string, restrict bool, mgr sandbox.Manager) *ListFilesTool {
	return &ListFilesTool{workspace: workspace, restrict: restrict, sandboxMgr: mgr}
}

func (t *ListFilesTool) Name() string        { return "list_files" }
func (t *ListFilesTool) Description() string { return "List files and directories under a path" }
func (t *ListFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Directory to list (default: workspace root)"},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	p, _ := args["path"].(string)
	if p == "" {
		p = "."
	}

	sandboxKey := ToolSandboxKeyFromCtx(ctx)
	if t.sandboxMgr != nil && sandboxKey != "" {
		sb, err := t.sandboxMgr.Get(ctx, sandboxKey, t.workspace)
		if err == nil {
			out, lerr := sandbox.NewFsBridge(sb, "/workspace").ListFiles(ctx, p)
			if lerr != nil {
				return ErrorResult(fmt.Sprintf("failed to list files: %v", lerr))
			}
			return SilentResult(out)
		}
		if err != sandbox.ErrSandboxDisabled {
			return ErrorResult(fmt.Sprintf("sandbox error: %v", err))
		}
	}

	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = t.workspace
	}
	resolved, err := resolvePath(p, workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list directory: %v", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return SilentResult("(empty directory)")
	}
	return SilentResult(strings.Join(names, "\n"))
}

// EditTool applies a single search-and-replace edit to a file.
type EditTool struct {
	workspace  string
	restrict   bool
	sandboxMgr sandbox.Manager
}

func NewEditTool(workspace string, restrict bool) *EditTool {
	return &EditTool{workspace: workspace, restrict: restrict}
}

func NewSandboxedEditTool(workspace string, restrict bool, mgr sandbox.Manager) *EditTool {
	return &EditTool{workspace: workspace, restrict: restrict, sandboxMgr: mgr}
}

func (t *EditTool) Name() string { return "edit" }
func (t *EditTool) Description() string {
	return "Replace an exact substring in a file with new text. The old_string must appear exactly once."
}
func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "Path to the file to edit"},
			"old_string": map[string]interface{}{"type": "string", "description": "Exact text to replace"},
			"new_string": map[string]interface{}{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	p, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	if p == "" || oldStr == "" {
		return ErrorResult("path and old_string are required")
	}

	sandboxKey := ToolSandboxKeyFromCtx(ctx)
	if t.sandboxMgr != nil && sandboxKey != "" {
		sb, err := t.sandboxMgr.Get(ctx, sandboxKey, t.workspace)
		if err == nil {
			bridge := sandbox.NewFsBridge(sb, "/workspace")
			content, rerr := bridge.ReadFile(ctx, p)
			if rerr != nil {
				return ErrorResult(fmt.Sprintf("failed to read file: %v", rerr))
			}
			updated, eerr := applySingleEdit(content, oldStr, newStr)
			if eerr != nil {
				return ErrorResult(eerr.Error())
			}
			if werr := bridge.WriteFile(ctx, p, updated); werr != nil {
				return ErrorResult(fmt.Sprintf("failed to write file: %v", werr))
			}
			return SilentResult(fmt.Sprintf("edited %s", p))
		}
		if err != sandbox.ErrSandboxDisabled {
			return ErrorResult(fmt.Sprintf("sandbox error: %v", err))
		}
	}

	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = t.workspace
	}
	resolved, err := resolvePath(p, workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}

	updated, err := applySingleEdit(string(data), oldStr, newStr)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.WriteFile(resolved, []byte(updated), 0644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	return SilentResult(fmt.Sprintf("edited %s", p))
}

// applySingleEdit replaces exactly one occurrence of oldStr with newStr,
// erroring if oldStr is missing or ambiguous (appears more than once).
func applySingleEdit(content, oldStr, newStr string) (string, error) {
	count := strings.Count(content, oldStr)
	if count == 0 {
		return "", fmt.Errorf("old_string not found in file")
	}
	if count > 1 {
		return "", fmt.Errorf("old_string is not unique in file (%d occurrences); include more context", count)
	}
	return strings.Replace(content, oldStr, newStr, 1), nil
}
