// Package index defines a minimal abstraction for vector indexes that can be
// built from embeddings, queried for kNN, and serialized for persistence.
// Implementations in this module include a brute-force baseline and an exact
// vantage-point tree; both rank identically.
package index
