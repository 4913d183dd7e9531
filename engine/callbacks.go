package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcore/logging"
)

// CallbackType identifies a lifecycle point of an execution.
type CallbackType string

const (
	// CallbackBeforeAgent runs after the profile is loaded. An error aborts the call.
	CallbackBeforeAgent CallbackType = "before_agent"
	// CallbackAfterAgent runs after a successful call. Errors are ignored.
	CallbackAfterAgent CallbackType = "after_agent"
	// CallbackBeforeModel runs with the full prompt. An error aborts the call.
	CallbackBeforeModel CallbackType = "before_model"
	// CallbackAfterModel runs with the generated output. An error aborts the
	// call before the buffer is updated.
	CallbackAfterModel CallbackType = "after_model"
	// CallbackBeforeTool runs with the selected tool and input. An error skips the tool.
	CallbackBeforeTool CallbackType = "before_tool"
	// CallbackAfterTool runs with the tool result. Errors are ignored.
	CallbackAfterTool CallbackType = "after_tool"
	// CallbackOnError runs when an execution fails. Errors are ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the execution state visible to callbacks. Fields
// are filled progressively as the execution advances.
type CallbackContext struct {
	InvocationID string
	AgentID      string
	SessionID    string
	Stage        string
	Model        string
	Query        string
	Tool         string
	ToolInput    string
	ToolOutput   string
	Prompt       string
	Output       string
	Err          error
}

// Callback hooks into one lifecycle point. Callbacks run synchronously on
// the execution path and should be fast.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager runs registered callbacks in registration order. The first
// error stops the chain. Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// Register adds callbacks.
func (cm *CallbackManager) Register(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// Execute runs the callbacks registered for callbackType.
func (cm *CallbackManager) Execute(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback records a lifecycle point on a logger.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"invocation_id", cc.InvocationID, "agent_id", cc.AgentID, "session_id", cc.SessionID}
	if cc.Tool != "" {
		args = append(args, "tool", cc.Tool)
	}
	if cc.Err != nil {
		args = append(args, "stage", cc.Stage, "error", cc.Err.Error())
		c.logger.Warn("engine.callback."+string(c.callbackType), args...)
		return nil
	}
	c.logger.Info("engine.callback."+string(c.callbackType), args...)
	return nil
}

// QueryGuardCallback rejects queries before any tool or model runs.
type QueryGuardCallback struct {
	validate func(query string) error
}

// NewQueryGuardCallback creates a guard running validate on every query.
func NewQueryGuardCallback(validate func(query string) error) *QueryGuardCallback {
	return &QueryGuardCallback{validate: validate}
}

// Type implements Callback (always CallbackBeforeAgent).
func (c *QueryGuardCallback) Type() CallbackType { return CallbackBeforeAgent }

// Execute implements Callback.
func (c *QueryGuardCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.validate == nil {
		return nil
	}
	return c.validate(cc.Query)
}
