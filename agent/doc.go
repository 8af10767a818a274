// Package agent implements the orchestration strategies that turn a
// customer request into an answer:
//
//   - NonAgentic: one model call, no tools.
//   - Agentic: the ReAct loop (think, act, observe) over a tool registry.
//   - Autonomous: a plan/act/observe/reflect/finish state graph.
//
// Each strategy owns its transcript for the duration of a run and reports
// every outcome, including failures, as a *core.RunResult. Model calls go
// through a Gateway and are retried with exponential backoff while the
// provider is unavailable. Tool batches run concurrently via tool.Dispatcher.
package agent
