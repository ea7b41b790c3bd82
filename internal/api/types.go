package api

import (
	"fmt"
	"strings"
	"time"
)

// TerminalState is the state a callee workflow is left in after a
// synchronous run.
type TerminalState string

const (
	// StateExecuted means every step completed.
	StateExecuted TerminalState = "EXECUTED"
	// StateRunning means the engine could not reach a terminal state
	// synchronously, for example because the run was interrupted. Callers
	// treat it as a failure.
	StateRunning TerminalState = "RUNNING"
	// StateIdle means the run stopped on a failing step and the workflow is
	// back to a not-executed state.
	StateIdle TerminalState = "IDLE"
)

// ParameterType is the declared type of a workflow input or output.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeObject  ParameterType = "object"
	TypeArray   ParameterType = "array"
	TypeAny     ParameterType = "any"
)

// ParameterTypes lists every valid ParameterType.
var ParameterTypes = []string{
	string(TypeString), string(TypeNumber), string(TypeInteger), string(TypeBoolean),
	string(TypeObject), string(TypeArray), string(TypeAny),
}

// Parameter describes one declared input or output of a callee workflow.
type Parameter struct {
	Name        string        `json:"name" yaml:"name"`
	Type        ParameterType `json:"type" yaml:"type"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Default     interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// InvocationResult is what a single invocation of a callee returns.
type InvocationResult struct {
	// InvocationID identifies the invocation in the history tracker.
	InvocationID string `json:"invocationId,omitempty"`

	// Location is the canonical key of the callee.
	Location string `json:"location"`

	State   TerminalState          `json:"state"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Message holds the callee's error and warning text. It is only set
	// when State is not StateExecuted.
	Message string `json:"message,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the callee reached StateExecuted.
func (r *InvocationResult) Succeeded() bool {
	return r != nil && r.State == StateExecuted
}

// Err returns an ExecutionFailure when the callee did not reach
// StateExecuted, nil otherwise.
func (r *InvocationResult) Err() error {
	if r == nil || r.State == StateExecuted {
		return nil
	}
	return &ExecutionFailure{Location: r.Location, State: r.State, Message: r.Message}
}

// JoinMessages joins engine messages into the single string carried by
// InvocationResult.Message.
func JoinMessages(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	if len(messages) == 1 {
		return messages[0]
	}
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = fmt.Sprintf("%d. %s", i+1, m)
	}
	return strings.Join(parts, "\n")
}
