// Package logging provides a minimal logging interface and adapters for teammesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that the router, channel, turn executor and tools use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter wrapping rs/zerolog (used by the CLI)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	mesh := teammesh.New(models, func(o *teammesh.Options) { o.Logger = logger })
//
// Messages are dotted event keys ("turn.step.start") followed by key/value pairs.
package logging
