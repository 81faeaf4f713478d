// Package zap provides the go.uber.org/zap implementation of the log.Logger
// facade, with automatic trace/span correlation when a context carries an
// active OpenTelemetry span.
package zap
