// Package postgres provides the PostgreSQL connection hub used by the
// durable ledger adapter: a primary/replica resolver with lazy connect,
// credential-sanitized errors, and an explicit migration runner.
//
// It deals only in connections and schema lifecycle; ledger semantics live
// in ledger/adapters/postgres.
package postgres
