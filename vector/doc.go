// Package vector defines the shared data model of the retrieval pipeline:
//   - Document, Chunk, Entry and ScoredResult
//   - the error taxonomy used across packages (ErrInvalidArgument, ...)
//   - embedding BLOB encoding used by the SQLite persisted index
//   - cosine and L2 distance functions
package vector
