// Package testutil contains fluent builders that cut boilerplate in tests:
// scripted model turns for model.MockModel and recording tools for a
// tool.Registry. They are not intended for production usage.
package testutil
