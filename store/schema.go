package store

import (
	"context"
	"database/sql"
)

// storageName keys the chunk index row in vector_storage.
const storageName = "chunks"

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    position INTEGER PRIMARY KEY,
    id TEXT NOT NULL,
    source TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB NOT NULL
);
`

const metaSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const vectorStorageSchema = `
CREATE TABLE IF NOT EXISTS vector_storage (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    "index" BLOB NOT NULL
);
`

// index_meta keys
const (
	metaDimension = "dimension"
	metaCount     = "count"
	metaModel     = "model"
	metaKind      = "index_kind"
	metaBuildID   = "build_id"
	metaCreatedAt = "created_at"
)

// EnsureSchema creates the chunk, metadata and index storage tables in the
// provided database if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{chunksSchema, metaSchema, vectorStorageSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
