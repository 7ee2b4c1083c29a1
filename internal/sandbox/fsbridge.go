package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
)

// FsBridge gives filesystem tools (read_file, write_file, list_files) a way
// to reach into a running sandbox container without a dedicated file-copy
// API: every operation shells out through the sandbox's existing Exec, the
// same path exec_tool uses, so no extra container capability is required.
type FsBridge struct {
	sb   Sandbox
	base string // container-side root, e.g. "/workspace"
}

// NewFsBridge wraps an already-running sandbox for filesystem access rooted
// at base.
func NewFsBridge(sb Sandbox, base string) *FsBridge {
	return &FsBridge{sb: sb, base: base}
}

func (b *FsBridge) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(b.base, p)
}

// ReadFile returns the contents of a file inside the container.
func (b *FsBridge) ReadFile(ctx context.Context, p string) (string, error) {
	target := b.resolve(p)
	res, err := b.sb.Exec(ctx, []string{"sh", "-c", fmt.Sprintf("base64 %q", target)}, b.base)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("read %s: %s", target, strings.TrimSpace(res.Stderr))
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(res.Stdout))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", target, err)
	}
	return string(data), nil
}

// WriteFile writes content to a file inside the container, creating parent
// directories as needed.
func (b *FsBridge) WriteFile(ctx context.Context, p, content string) error {
	target := b.resolve(p)
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	script := fmt.Sprintf("mkdir -p %q && echo %s | base64 -d > %q", path.Dir(target), encoded, target)
	res, err := b.sb.Exec(ctx, []string{"sh", "-c", script}, b.base)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("write %s: %s", target, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ListFiles lists entries directly under p inside the container.
func (b *FsBridge) ListFiles(ctx context.Context, p string) (string, error) {
	target := b.resolve(p)
	res, err := b.sb.Exec(ctx, []string{"sh", "-c", fmt.Sprintf("ls -la %q", target)}, b.base)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("list %s: %s", target, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}
