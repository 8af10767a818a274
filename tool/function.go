package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/neobank/core"
)

// FunctionTool exposes a plain Go function as a Tool.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use. Argument validation happens in the Registry before Call.
type FunctionTool struct {
	name         string
	description  string
	parameters   map[string]any
	resultSchema map[string]any
	fn           func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// FunctionOption configures a FunctionTool.
type FunctionOption func(t *FunctionTool)

// WithResultSchema declares the JSON Schema of the tool's payload.
func WithResultSchema(schema map[string]any) FunctionOption {
	return func(t *FunctionTool) { t.resultSchema = schema }
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...FunctionOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}

	for _, fn := range optFns {
		fn(t)
	}

	return t
}

// NewFunctionToolFromStruct derives the parameter schema from T and decodes
// the validated arguments into a T before calling fn.
//
//	type BalanceArgs struct {
//	  Currency string `json:"currency,omitempty" jsonschema:"description=ISO currency code"`
//	}
//
//	balance := NewFunctionToolFromStruct("get_balance", "Return the account balance",
//	  func(tc *core.ToolContext, args BalanceArgs) (any, error) { ... })
func NewFunctionToolFromStruct[T any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args T) (any, error),
	optFns ...FunctionOption,
) *FunctionTool {
	return NewFunctionTool(name, description, SchemaFor[T](), func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args T
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}

		return fn(tc, args)
	}, optFns...)
}

// Name returns the tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// ResultSchema returns the declared payload schema, or nil.
func (t *FunctionTool) ResultSchema() map[string]any { return t.resultSchema }

// Call invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	return t.fn(toolCtx, args)
}

func decodeArgs(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	return nil
}
