// Package oracle defines the external services the pipeline depends on: an
// embedding oracle that maps text to vectors and an answer oracle that maps a
// prompt to text. Both are opaque; callers must not assume determinism.
//
// Backends for OpenAI and Gemini are provided, plus a deterministic local
// hashing embedder. Guard wraps any backend with retries, a circuit breaker,
// client-side rate limiting and tracing.
package oracle
