package tool

import "errors"

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDuplicateTool is returned when registering a tool with a name that
	// already exists in the registry.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrMissingParam is returned when a required parameter is absent from
	// a call's arguments.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrBadParam is returned when an argument cannot be coerced to the
	// parameter's declared type.
	ErrBadParam = errors.New("invalid parameter")

	// ErrNotAllowed is returned when execute_command is asked to run a
	// binary outside the allowlist.
	ErrNotAllowed = errors.New("command not allowed")
)
