// Package store holds the in-memory vector index of embedded chunks and its
// persisted form, a single SQLite file written atomically.
//
// A VectorIndex is safe for concurrent use: Build and Reload prepare a new
// immutable snapshot off-lock and swap it in, so searches observe either the
// previous or the new index, never a mix.
package store
