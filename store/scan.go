package store

import (
	"context"
	"fmt"

	"github.com/viant/sqlite-rag/engine"
	"github.com/viant/sqlite-rag/vector"
)

// ScanPersisted ranks the chunks persisted at path against query inside
// SQLite using vec_cosine, without loading the index. Ordering and scores
// match Search on the same contents.
func ScanPersisted(ctx context.Context, path string, query []float32, k int) ([]vector.ScoredResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("store: scan k=%d: %w", k, vector.ErrInvalidArgument)
	}
	if err := engine.RegisterVectorFunctions(nil); err != nil {
		return nil, fmt.Errorf("store: register vector functions: %w", err)
	}
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db, path)
	if err != nil {
		return nil, err
	}
	if meta.Count == 0 {
		return []vector.ScoredResult{}, nil
	}
	if len(query) != meta.Dimension {
		return nil, fmt.Errorf("store: query dimension %d, index dimension %d: %w", len(query), meta.Dimension, vector.ErrIncompatibleIndex)
	}

	rows, err := db.QueryContext(ctx, `
SELECT id, source, start_offset, ordinal, content, vec_cosine(embedding, ?) AS score
FROM chunks
ORDER BY score DESC, position ASC
LIMIT ?`, vector.EncodeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", path, err)
	}
	defer rows.Close()
	results := make([]vector.ScoredResult, 0, k)
	for rows.Next() {
		var r vector.ScoredResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.StartOffset, &r.Chunk.Ordinal, &r.Chunk.Content, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
