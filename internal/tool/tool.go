// Package tool implements model-driven tool calling: a registry of named
// tools, a parser that extracts call requests from model output, and an
// executor that validates arguments and runs the tool with a deadline.
package tool

import "context"

// ParamType is the declared type of a tool parameter.
type ParamType string

// Parameter types accepted in tool definitions.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param describes one parameter of a tool.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`

	// Default is substituted when an optional parameter is absent.
	Default any `json:"default,omitempty"`
}

// Definition is a tool's caller-facing description, used both for the
// model-facing system prompt and the HTTP tool listing.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"parameters"`
}

// Tool is the interface all tools implement.
type Tool interface {
	// Definition returns the tool's name, description, and parameters.
	Definition() Definition

	// Execute runs the tool. Arguments have already been validated and
	// coerced against the definition.
	Execute(ctx context.Context, args map[string]any) (string, error)
}
