// Package tool implements the tool calling subsystem: the Tool contract, a
// function adapter with schema generation, the Registry that validates and
// invokes calls, and a Dispatcher that runs the calls of one model response
// concurrently.
package tool

import (
	"github.com/hupe1980/neobank/core"
)

// Tool is a named, schema-described callable the model may request.
//
// Implementations must be safe for concurrent use: the Dispatcher may invoke
// the same tool from several goroutines within one batch.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns the JSON Schema of the arguments object. A nil
	// schema accepts any object.
	Parameters() map[string]any

	// Call executes the tool. Arguments have already been validated against
	// Parameters by the Registry.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ResultSchemaProvider is implemented by tools that declare the shape of their
// payload. Payloads that do not conform are reported as data errors when they
// are folded into a run.
type ResultSchemaProvider interface {
	ResultSchema() map[string]any
}

// Definition is the model-facing description of a registered tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
