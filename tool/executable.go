package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcore/logging"
)

// ErrorPrefix starts every failed tool result.
const ErrorPrefix = "Error: "

type runFunc func(ctx context.Context, input string) (string, error)

// Executable is a catalog tool bound to its validated configuration. The
// configuration is captured at construction and cannot change afterwards.
//
// Run never returns an error and never panics:
//
//	*ToolError          -> "Error: <message>"
//	other error         -> "Error: <err>"
//	panic               -> "Error: internal tool failure: <value>"
//
// Logging Fields:
//
//	tool: tool name
//	kind: tool kind
//	duration_ms: execution time in milliseconds
type Executable struct {
	name        string
	kind        Kind
	category    string
	description string
	run         runFunc
	logger      logging.Logger
}

// Name returns the unique tool name.
func (e *Executable) Name() string { return e.name }

// Kind returns the tool variant.
func (e *Executable) Kind() Kind { return e.kind }

// Category returns the catalog category.
func (e *Executable) Category() string { return e.category }

// Description returns the short natural language description exposed to models.
func (e *Executable) Description() string { return e.description }

// Run executes the tool on input and returns its textual result.
func (e *Executable) Run(ctx context.Context, input string) (out string) {
	start := time.Now()
	e.logger.Debug("tool.call.start", "tool", e.name, "kind", e.kind.String())

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool.call.panic", "tool", e.name, "panic", fmt.Sprint(r))
			out = ErrorPrefix + fmt.Sprintf("internal tool failure: %v", r)
		}
	}()

	result, err := e.run(ctx, input)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			e.logger.Warn("tool.call.error", "tool", e.name, "code", toolErr.Code, "error", toolErr.Message)
			return ErrorPrefix + toolErr.Message
		}
		e.logger.Warn("tool.call.error", "tool", e.name, "error", err.Error())
		return ErrorPrefix + err.Error()
	}

	e.logger.Info("tool.call.success", "tool", e.name, "duration_ms", time.Since(start).Milliseconds())
	return result
}

// IsError reports whether a tool result is a rendered failure.
func IsError(result string) bool {
	return len(result) >= len(ErrorPrefix) && result[:len(ErrorPrefix)] == ErrorPrefix
}
