// Package log defines the logging facade used by the ledger and its storage
// adapters. It carries no backend of its own; the zap subpackage provides the
// production implementation and NopLogger is the default when nothing is
// injected.
package log
