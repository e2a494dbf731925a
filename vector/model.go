package vector

import "strconv"

// Document is a raw text source produced by a document loader. It is
// immutable once loaded.
type Document struct {
	// Source identifies where the text came from, typically a file path.
	Source string

	// Text holds the extracted plain text.
	Text string
}

// Chunk is a contiguous span of a Document's text used as the unit of
// retrieval.
type Chunk struct {
	// ID is derived from Source and Ordinal and is stable across rebuilds.
	ID string

	// Source is copied from the parent Document.
	Source string

	// Content is the exact text between StartOffset and the end of the span.
	Content string

	// StartOffset is the character (rune) offset of Content's first
	// character within the parent document text.
	StartOffset int

	// Ordinal is the zero-based emission position within the parent document.
	Ordinal int
}

// ChunkID returns the identifier used for the ordinal-th chunk of source.
func ChunkID(source string, ordinal int) string {
	return source + "#" + strconv.Itoa(ordinal)
}

// Entry pairs an embedding with the chunk it was computed from. Entries are
// created during an index build and never mutated afterwards.
type Entry struct {
	Embedding []float32
	Chunk     Chunk
}

// ScoredResult is a single search hit. Higher Score means more relevant.
type ScoredResult struct {
	Chunk Chunk
	Score float64
}

// Sources returns the source of every result in order, duplicates included.
func Sources(results []ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Source
	}
	return out
}
