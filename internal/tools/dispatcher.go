// Package tools holds the function-call registry the relay dispatches to and
// the Contoso retail tool implementations behind it.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/contoso-voice/backend/internal/voicelive"
)

// Func executes one tool call with decoded keyword arguments. The result is
// either a string or any JSON-serializable value.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher holds the fixed name-to-callable registry. The registry is
// validated against the advertised catalogue at construction, so an unknown
// name is a startup configuration error rather than a silent runtime drop.
type Dispatcher struct {
	funcs  map[string]Func
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher and checks that the catalogue and the
// registered callables match one-to-one.
func NewDispatcher(catalog []voicelive.ToolDefinition, funcs map[string]Func, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	advertised := make(map[string]bool, len(catalog))
	for _, def := range catalog {
		advertised[def.Name] = true
		if _, ok := funcs[def.Name]; !ok {
			return nil, fmt.Errorf("tool %q is advertised but has no implementation", def.Name)
		}
	}
	for name := range funcs {
		if !advertised[name] {
			return nil, fmt.Errorf("tool %q is implemented but not advertised", name)
		}
	}
	return &Dispatcher{funcs: funcs, logger: logger}, nil
}

// Execute runs the named call and returns the string result to send back into
// the conversation. Failures are converted to a structured error payload so
// the conversation continues instead of stalling.
func (d *Dispatcher) Execute(ctx context.Context, name string, args json.RawMessage) string {
	fn, ok := d.funcs[name]
	if !ok {
		d.logger.Error("unknown function call", zap.String("function", name))
		return errorResult(fmt.Sprintf("unknown function: %s", name))
	}

	var kwargs map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &kwargs); err != nil {
			d.logger.Error("invalid function arguments",
				zap.String("function", name), zap.Error(err))
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := fn(ctx, kwargs)
	if err != nil {
		d.logger.Error("function call failed", zap.String("function", name), zap.Error(err))
		return errorResult(err.Error())
	}
	switch v := result.(type) {
	case string:
		return v
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return errorResult(fmt.Sprintf("serialize result: %v", err))
		}
		return string(body)
	}
}

func errorResult(message string) string {
	body, _ := json.Marshal(map[string]string{"error": message})
	return string(body)
}
