// Package log provides the logging abstraction used by repoboot components.
//
// Components accept a Logger and never construct one themselves. The zerolog
// adapter is what the CLI wires in; libraries fall back to the no-op logger.
//
//	logger := log.NewZerologAdapterWithLevel("debug")
//	reg := registry.New(registry.Config{Name: "repo"}, registry.WithLogger(logger))
//
// Implement Logger to route messages into an existing logging setup:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
package log
