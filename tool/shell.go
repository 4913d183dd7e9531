package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// shellMetachars are rejected outright. Commands are never run through a
// shell, so these would only signal an injection attempt. "!" starts shell
// escapes in git aliases and similar option values.
const shellMetachars = ";&|$`<>!\\\n\r"

func newShell(cfg ShellConfig) runFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedCommands))
	for _, c := range cfg.AllowedCommands {
		allowed[c] = struct{}{}
	}
	denied := cfg.denied
	return func(ctx context.Context, input string) (string, error) {
		line := strings.TrimSpace(input)
		if line == "" {
			return "", NewToolError(NameShell, "empty command", CodeValidation)
		}
		if strings.ContainsAny(line, shellMetachars) {
			return "", NewToolError(NameShell, "shell metacharacters are not allowed", CodePolicy)
		}
		fields := strings.Fields(line)
		name := fields[0]
		if strings.ContainsAny(name, `/\`) {
			return "", NewToolError(NameShell, fmt.Sprintf("command paths are not allowed: %q", name), CodePolicy)
		}
		if _, ok := allowed[name]; !ok {
			return "", NewToolError(NameShell, fmt.Sprintf("command %q is not in the allow-list", name), CodePolicy)
		}
		for _, arg := range fields[1:] {
			if filepath.IsAbs(arg) || containsDotDot(arg) {
				return "", NewToolError(NameShell, fmt.Sprintf("argument %q escapes the working directory", arg), CodePolicy)
			}
			if argDenied(arg, denied[name]) {
				return "", NewToolError(NameShell, fmt.Sprintf("argument %q is not allowed for %s", arg, name), CodePolicy)
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()

		cmd := exec.CommandContext(runCtx, name, fields[1:]...)
		cmd.Dir = cfg.WorkDir
		out := &cappedBuffer{max: cfg.MaxOutputBytes}
		cmd.Stdout = out
		cmd.Stderr = out

		err := cmd.Run()
		text := out.String()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", NewToolError(NameShell, fmt.Sprintf("command timed out after %s", time.Duration(cfg.Timeout)), CodeTimeout)
		}
		if err != nil {
			msg := fmt.Sprintf("command failed: %v", err)
			if text != "" {
				msg += "\n" + text
			}
			return "", NewToolError(NameShell, msg, CodeExecution)
		}
		if text == "" {
			return "(no output)", nil
		}
		return text, nil
	}
}

func argDenied(arg string, patterns []string) bool {
	for _, p := range patterns {
		switch {
		case strings.HasSuffix(p, "*"):
			if strings.HasPrefix(strings.ToLower(arg), strings.ToLower(strings.TrimSuffix(p, "*"))) {
				return true
			}
		case len(p) == 2 && p[0] == '-' && p[1] != '-':
			if strings.HasPrefix(arg, p) {
				return true
			}
		case strings.HasPrefix(p, "--"):
			if arg == p || strings.HasPrefix(arg, p+"=") {
				return true
			}
		case arg == p:
			return true
		}
	}
	return false
}

func containsDotDot(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' || r == '=' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// cappedBuffer keeps at most max bytes and silently drops the rest so the
// child process never blocks on a full pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimRight(string(b.buf), "\n")
	if b.truncated {
		s += "\n[output truncated]"
	}
	return s
}
