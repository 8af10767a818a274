// Package core provides the foundational domain types of the orchestration
// core:
//
//   - Request (immutable user input with structured context)
//   - Message / Transcript (append-only conversation record of one run)
//   - ToolCall / ToolResult (correlated tool invocation and outcome)
//   - RunResult / Status (completed, exhausted, failed)
//   - Error (single tagged error type with a details map)
//   - ToolContext (scoped surface handed to tool implementations)
//
// The package keeps implementation concerns (providers, strategies, graph
// execution) out of scope so the other packages can share one vocabulary.
package core
