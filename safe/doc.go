// Package safe provides overflow-checked int64 arithmetic for ledger
// amounts. All internal money math is exact integer arithmetic; these
// helpers turn silent wraparound into explicit errors.
package safe
