// Package bruteforce implements the exact baseline index: every query scores
// all stored vectors by cosine similarity and keeps the best k, ties broken
// by insertion order. The index serializes to a compact little-endian blob
// stored alongside the chunk rows.
package bruteforce
