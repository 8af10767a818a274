// Package logging provides a minimal logging interface and adapters for the
// neobank orchestration core.
//
// The Logger interface defines the leveled, key/value logging methods that
// strategies, the tool registry and the model gateway use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - ZapAdapter wrapping a *zap.Logger (the production logger)
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: logging.LogLevelInfo, Format: "json"})
//	assistant := neobank.New(gateway, registry, func(o *neobank.Options) { o.Logger = logger })
//
// The interface stays minimal so callers can bring their own structured
// logger.
package logging
