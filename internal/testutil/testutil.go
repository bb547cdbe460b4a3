// Package testutil provides test utilities for crashpull, including:
//   - CSV fixtures shaped like the collisions dataset (fixtures.go)
//   - Miniredis and loopback address helpers (miniredis.go)
//   - Stub probers and fetchers that count their calls (stubs.go)
//
// None of the helpers require network access or Docker.
package testutil
