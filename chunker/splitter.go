package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/viant/sqlite-rag/vector"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 300
	// DefaultChunkOverlap is the minimum number of characters shared by
	// consecutive chunks of one document.
	DefaultChunkOverlap = 100
)

// DefaultSeparators lists boundary levels from the most to the least
// preferred: paragraph, line, sentence, word.
var DefaultSeparators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" ", "\t"},
}

// Splitter splits document text into chunks of at most size characters,
// overlapping by at least overlap characters.
type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
	widths     []int
	levels     [][]int
}

// Option customises a Splitter.
type Option func(*Splitter)

// WithSeparators replaces DefaultSeparators. Each level is tried in order;
// within a level the latest occurrence of any separator wins.
func WithSeparators(levels ...[]string) Option {
	return func(s *Splitter) {
		s.separators, s.widths, s.levels = compile(levels)
	}
}

// New returns a Splitter. It fails with vector.ErrInvalidConfiguration unless
// 0 <= overlap < size.
func New(size, overlap int, opts ...Option) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: chunk size %d with overlap %d (need 0 <= overlap < size): %w",
			size, overlap, vector.ErrInvalidConfiguration)
	}
	s := &Splitter{size: size, overlap: overlap}
	s.separators, s.widths, s.levels = compile(DefaultSeparators)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split splits every document with a Splitter built from size and overlap.
// Chunks are returned document by document, in input order.
func Split(docs []vector.Document, size, overlap int) ([]vector.Chunk, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(docs), nil
}

// Split splits every document in order.
func (s *Splitter) Split(docs []vector.Document) []vector.Chunk {
	var out []vector.Chunk
	for _, doc := range docs {
		out = append(out, s.SplitDocument(doc)...)
	}
	return out
}

// SplitDocument splits a single document. Blank documents yield no chunks; a
// document no longer than the chunk size yields itself at offset 0. A cut that
// would leave a whitespace-only chunk is moved further right, so whitespace
// runs stay attached to the following text.
func (s *Splitter) SplitDocument(doc vector.Document) []vector.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	text := []rune(doc.Text)
	n := len(text)

	var chunks []vector.Chunk
	start, prevEnd, minEnd := 0, 0, 0
	for {
		end := n
		if start+s.size < n {
			lo := max(start+s.overlap, prevEnd, minEnd)
			end = s.cut(text, start, lo, start+s.size)
		}
		content := string(text[start:end])
		if strings.TrimSpace(content) == "" && end < n && end < start+s.size {
			// a blank span is folded into the chunk that follows it
			minEnd = end
			continue
		}
		if strings.TrimSpace(content) != "" {
			ordinal := len(chunks)
			chunks = append(chunks, vector.Chunk{
				ID:          vector.ChunkID(doc.Source, ordinal),
				Source:      doc.Source,
				Content:     content,
				StartOffset: start,
				Ordinal:     ordinal,
			})
		}
		if end >= n {
			return chunks
		}
		prevEnd, minEnd = end, 0
		start = s.nextStart(text, start, end-s.overlap)
	}
}

// cut picks the end of a chunk starting at start within (lo, hi]. lo > start
// keeps the next start strictly ahead; hi bounds the chunk size.
func (s *Splitter) cut(text []rune, start, lo, hi int) int {
	for _, level := range s.levels {
		for pos := hi; pos > lo; pos-- {
			for _, i := range level {
				sep := s.separators[i]
				from := pos - s.widths[i]
				if from < start {
					continue
				}
				if runesEqual(text[from:pos], sep) {
					return pos
				}
			}
		}
	}
	return hi
}

// nextStart moves the next chunk start back to a word start, at most overlap
// characters before limit, so the overlap never drops below s.overlap.
func (s *Splitter) nextStart(text []rune, start, limit int) int {
	if s.overlap == 0 {
		return limit
	}
	floor := limit - s.overlap
	if floor < start {
		floor = start
	}
	for p := limit; p > floor; p-- {
		if !unicode.IsSpace(text[p]) && unicode.IsSpace(text[p-1]) {
			return p
		}
	}
	return limit
}

func compile(levels [][]string) ([][]rune, []int, [][]int) {
	var seps [][]rune
	var widths []int
	idx := make([][]int, 0, len(levels))
	for _, level := range levels {
		var ids []int
		for _, sep := range level {
			if sep == "" {
				continue
			}
			r := []rune(sep)
			ids = append(ids, len(seps))
			seps = append(seps, r)
			widths = append(widths, len(r))
		}
		if len(ids) > 0 {
			idx = append(idx, ids)
		}
	}
	return seps, widths, idx
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
