// Package testutil contains helper builders used across tests to construct
// agent profiles and conversation histories with little boilerplate. They are
// not intended for production usage.
package testutil
