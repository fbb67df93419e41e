// Package testutil provides shared test helpers:
//   - Miniredis helpers for report sink tests (miniredis.go)
//   - Raw pays/taps/prints fixtures spanning five weeks (fixtures.go)
//   - Quiet loggers with captured entries (logging.go)
package testutil
