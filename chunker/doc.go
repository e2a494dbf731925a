// Package chunker splits documents into overlapping, size-bounded chunks.
//
// Splitting is boundary aware: a chunk ends after a paragraph break when one
// fits, otherwise after a line break, a sentence end, a word break, and only
// as a last resort at a hard character cut. Every chunk records the character
// offset where it starts in the source document.
package chunker
