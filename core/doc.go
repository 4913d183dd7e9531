// Package core provides the foundational domain types, interfaces and error
// taxonomy shared by agentcore. It defines the core abstractions for:
//
//   - Memory records, search scopes and ranked results (vector memory)
//   - Chat turns kept in the per-session conversation buffer
//   - Agent profiles and tool bindings loaded from the relational store
//   - Execution requests, results and stream events of the orchestrator
//
// The package keeps implementation concerns (persistence, embedding backends,
// generation backends, orchestration) out of scope, exposing small interfaces
// so concrete backends can be swapped in tests and deployments.
package core
