// Package model defines the provider-agnostic generation backend used by the
// orchestrator, plus a deterministic MockBackend for tests and examples.
//
// Backends answer in full (request/response). Providers live in the openai
// and anthropic subpackages and map their failures onto the core error
// taxonomy:
//
//	network failure, timeout, 408, 429, 5xx -> core.ErrBackendUnreachable (retried)
//	no choices / no text                    -> core.ErrMalformedResponse (not retried)
//
// Every error is additionally wrapped with core.ErrGenerationBackend.
package model
