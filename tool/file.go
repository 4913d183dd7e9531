package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type fileRequest struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// parseFileRequest accepts JSON ({"action","path","content"}) or the line
// forms "read <path>" and "write <path>" followed by the content on the
// next lines.
func parseFileRequest(input string) (fileRequest, error) {
	in := strings.TrimSpace(input)
	if strings.HasPrefix(in, "{") {
		var req fileRequest
		if err := json.Unmarshal([]byte(in), &req); err != nil {
			return req, fmt.Errorf("invalid request: %w", err)
		}
		req.Action = strings.ToLower(req.Action)
		return req, nil
	}
	head, body, _ := strings.Cut(in, "\n")
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return fileRequest{}, fmt.Errorf(`expected "read <path>" or "write <path>\n<content>"`)
	}
	return fileRequest{
		Action:  strings.ToLower(fields[0]),
		Path:    strings.Join(fields[1:], " "),
		Content: body,
	}, nil
}

func newFile(cfg FileConfig) runFunc {
	return func(_ context.Context, input string) (string, error) {
		req, err := parseFileRequest(input)
		if err != nil {
			return "", NewToolError(NameFile, err.Error(), CodeValidation)
		}
		if req.Path == "" {
			return "", NewToolError(NameFile, "path is required", CodeValidation)
		}
		path, err := resolveInRoots(cfg.AllowedRoots, req.Path)
		if err != nil {
			return "", NewToolError(NameFile, err.Error(), CodePolicy)
		}
		switch req.Action {
		case "read":
			return readLimited(path, cfg.MaxReadBytes)
		case "write":
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", NewToolError(NameFile, fmt.Sprintf("create directory: %v", err), CodeExecution)
			}
			if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
				return "", NewToolError(NameFile, fmt.Sprintf("write file: %v", err), CodeExecution)
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(req.Content), path), nil
		default:
			return "", NewToolError(NameFile, fmt.Sprintf("unsupported action %q", req.Action), CodeValidation)
		}
	}
}

func readLimited(path string, max int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", NewToolError(NameFile, fmt.Sprintf("read file: %v", err), CodeExecution)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", NewToolError(NameFile, fmt.Sprintf("stat file: %v", err), CodeExecution)
	}
	if info.IsDir() {
		return "", NewToolError(NameFile, fmt.Sprintf("%s is a directory", path), CodeValidation)
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(max)+1))
	if err != nil {
		return "", NewToolError(NameFile, fmt.Sprintf("read file: %v", err), CodeExecution)
	}
	if len(data) > max {
		return string(data[:max]) + "\n[content truncated]", nil
	}
	return string(data), nil
}

// resolveInRoots maps p onto an absolute path and verifies it stays inside
// one of roots after resolving symlinks of the existing part of the path.
// Relative paths are resolved against the first root.
func resolveInRoots(roots []string, p string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(roots[0], abs)
	}
	abs = filepath.Clean(abs)
	real := resolveExisting(abs)
	for _, root := range roots {
		if within(root, real) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowed roots", p)
}

// resolveExisting evaluates symlinks on the longest existing prefix of p.
func resolveExisting(p string) string {
	rest := ""
	cur := p
	for {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			if rest == "" {
				return real
			}
			return filepath.Join(real, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
