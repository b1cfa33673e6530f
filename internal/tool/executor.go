package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const defaultExecTimeout = 30 * time.Second

// Result is the outcome of executing one parsed call.
type Result struct {
	Name     string        `json:"tool"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// Executor validates call arguments against the tool's definition and runs
// the tool under a deadline. Execution failures are captured in the Result
// rather than raised: a bad tool call must not fail the chat turn.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewExecutor creates an executor over the registry. A non-positive timeout
// falls back to 30s; a nil logger falls back to slog.Default().
func NewExecutor(registry *Registry, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, timeout: timeout, logger: logger}
}

// Execute runs one call and returns its result.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	start := time.Now()

	t, err := e.registry.Get(call.Name)
	if err != nil {
		return Result{Name: call.Name, Error: err.Error(), Duration: time.Since(start)}
	}

	args, err := coerceArgs(t.Definition(), call.Args)
	if err != nil {
		return Result{Name: call.Name, Error: err.Error(), Duration: time.Since(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	content, err := t.Execute(ctx, args)
	result := Result{Name: call.Name, Content: content, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		result.Content = ""
	}

	e.logger.Debug("tool executed",
		"tool", call.Name, "duration", result.Duration, "error", result.Error != "")
	return result
}

// ExecuteAll runs each call in order. Results are positionally aligned with
// the input calls.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(ctx, call))
	}
	return results
}

// coerceArgs checks required parameters, applies defaults, and coerces
// values to the declared types. Unknown arguments are dropped.
func coerceArgs(def Definition, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		raw, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("%w: %s.%s", ErrMissingParam, def.Name, p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		v, err := coerceValue(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrBadParam, def.Name, p.Name, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

// coerceValue converts a decoded JSON value to the declared parameter type.
// Models frequently quote numbers and booleans, so strings are parsed.
func coerceValue(typ ParamType, raw any) (any, error) {
	switch typ {
	case TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", v)
			}
			return f, nil
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %q", v)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, typ)
}
