// Package ousia provides the context plumbing shared by the ledger engine
// and its storage adapters: logger and tracer injection, correlation IDs,
// and deadline helpers.
//
// Typical usage at the edge of an embedding application:
//
//	ctx = ousia.ContextWithLogger(ctx, logger)
//	ctx = ousia.ContextWithTracer(ctx, tracer)
//
// The ledger itself lives in the ledger subpackage; adapters live under
// ledger/adapters.
package ousia
