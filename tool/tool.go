// Package tool implements the tool registry and the sandboxed executors that
// let agents augment a query with the output of a named capability (shell,
// file access, calculator, clock, web search).
//
// Every executable takes one string input and returns one string result.
// Failures, including panics, are rendered as an "Error: ..." string inside
// the tool boundary so prompt assembly never has to handle tool errors.
package tool

import (
	"fmt"
)

// Kind is the tagged variant of a tool. Each kind carries its own validated
// configuration struct.
type Kind int

const (
	KindShell Kind = iota + 1
	KindFile
	KindCalculator
	KindDateTime
	KindWebSearch
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindFile:
		return "file"
	case KindCalculator:
		return "calculator"
	case KindDateTime:
		return "datetime"
	case KindWebSearch:
		return "websearch"
	default:
		return "unknown"
	}
}

// Descriptor is a catalog entry.
type Descriptor struct {
	Name          string         `json:"name"`
	Kind          Kind           `json:"-"`
	Category      string         `json:"category"`
	Description   string         `json:"description"`
	Active        bool           `json:"active"`
	DefaultConfig map[string]any `json:"default_config,omitempty"`
}

// ToolError represents errors that occur during tool construction or execution.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePolicy     = "POLICY_ERROR"
	CodeTimeout    = "TIMEOUT_ERROR"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
