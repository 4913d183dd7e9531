// Package embedding provides core.Embedder implementations: an OpenAI
// compatible HTTP client (OpenAI, Ollama, vLLM, ...), a deterministic
// hashing embedder for tests and offline use, and a ristretto backed cache
// that can wrap either.
package embedding
