package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/viant/sqlite-rag/engine"
	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/vector"
)

// Meta describes a persisted index.
type Meta struct {
	Dimension int
	Count     int
	Model     string
	Kind      index.Kind
	BuildID   string
	CreatedAt time.Time
}

// Persist writes the current contents to a SQLite file at path. The file is
// written next to path under a temporary name and renamed over it, so readers
// see either the previous file or the complete new one.
func (v *VectorIndex) Persist(ctx context.Context, path string) error {
	snap := v.current()
	if snap == nil {
		var err error
		if snap, err = newSnapshot(nil, v.kind, v.model, uuid.NewString(), time.Now().UTC()); err != nil {
			return err
		}
	}
	started := time.Now()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := writeDatabase(ctx, tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: persist %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	v.logger.Info("index persisted",
		"path", path,
		"chunks", len(snap.chunks),
		"build_id", snap.buildID,
		"elapsed", time.Since(started))
	return nil
}

// Reload replaces the in-memory contents with the index persisted at path.
// When wantDim > 0 the persisted dimension must match it; when a model is
// configured the persisted model must match too. Either mismatch, or a file
// that is not a readable index, fails with vector.ErrIncompatibleIndex and
// leaves the current contents untouched.
func (v *VectorIndex) Reload(ctx context.Context, path string, wantDim int) error {
	started := time.Now()
	snap, err := readDatabase(ctx, path, v.kind)
	if err != nil {
		return err
	}
	if wantDim > 0 && snap.dim != 0 && snap.dim != wantDim {
		return fmt.Errorf("store: %s has dimension %d, embedder produces %d: %w", path, snap.dim, wantDim, vector.ErrIncompatibleIndex)
	}
	if v.model != "" && snap.model != "" && snap.model != v.model {
		return fmt.Errorf("store: %s was built with model %q, configured %q: %w", path, snap.model, v.model, vector.ErrIncompatibleIndex)
	}
	v.swap(snap)
	v.logger.Info("index reloaded",
		"path", path,
		"chunks", len(snap.chunks),
		"dimension", snap.dim,
		"kind", string(snap.kind),
		"build_id", snap.buildID,
		"elapsed", time.Since(started))
	return nil
}

// ReadMeta returns the metadata of the index persisted at path.
func ReadMeta(ctx context.Context, path string) (*Meta, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return readMeta(ctx, db, path)
}

func writeDatabase(ctx context.Context, path string, snap *snapshot) error {
	db, err := engine.OpenFile(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := EnsureSchema(ctx, db); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(position, id, source, start_offset, ordinal, content, embedding) VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range snap.chunks {
		emb := vector.EncodeEmbedding(snap.embeddings[i])
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Source, c.StartOffset, c.Ordinal, c.Content, emb); err != nil {
			return err
		}
	}

	meta := map[string]string{
		metaDimension: strconv.Itoa(snap.dim),
		metaCount:     strconv.Itoa(len(snap.chunks)),
		metaModel:     snap.model,
		metaKind:      string(snap.kind),
		metaBuildID:   snap.buildID,
		metaCreatedAt: snap.createdAt.Format(time.RFC3339Nano),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta(key, value) VALUES(?, ?)`, key, value); err != nil {
			return err
		}
	}

	data, err := snap.idx.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(name, kind, "index") VALUES(?, ?, ?)`, storageName, string(snap.kind), data); err != nil {
		return err
	}
	return tx.Commit()
}

func readDatabase(ctx context.Context, path string, fallback index.Kind) (*snapshot, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db, path)
	if err != nil {
		return nil, err
	}
	incompatible := func(format string, args ...any) error {
		return fmt.Errorf("store: %s: %s: %w", path, fmt.Sprintf(format, args...), vector.ErrIncompatibleIndex)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, source, start_offset, ordinal, content, embedding FROM chunks ORDER BY position`)
	if err != nil {
		return nil, incompatible("read chunks: %v", err)
	}
	defer rows.Close()
	snap := &snapshot{
		dim:       meta.Dimension,
		model:     meta.Model,
		buildID:   meta.BuildID,
		createdAt: meta.CreatedAt,
	}
	for rows.Next() {
		var c vector.Chunk
		var emb []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.StartOffset, &c.Ordinal, &c.Content, &emb); err != nil {
			return nil, incompatible("scan chunk: %v", err)
		}
		vec, err := vector.DecodeEmbeddingDim(emb, meta.Dimension)
		if err != nil {
			return nil, incompatible("chunk %s: %v", c.ID, err)
		}
		snap.chunks = append(snap.chunks, c)
		snap.embeddings = append(snap.embeddings, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, incompatible("read chunks: %v", err)
	}
	if len(snap.chunks) != meta.Count {
		return nil, incompatible("%d chunks stored, metadata records %d", len(snap.chunks), meta.Count)
	}

	var data []byte
	err = db.QueryRowContext(ctx, `SELECT "index" FROM vector_storage WHERE name = ?`, storageName).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rebuilt, err := newSnapshot(entriesOf(snap), fallback, snap.model, snap.buildID, snap.createdAt)
		if err != nil {
			return nil, incompatible("rebuild index: %v", err)
		}
		return rebuilt, nil
	case err != nil:
		return nil, incompatible("read index: %v", err)
	}
	idx, kind, err := index.Decode(data)
	if err != nil {
		return nil, incompatible("decode index: %v", err)
	}
	if idx.Len() != len(snap.chunks) || (idx.Len() > 0 && idx.Dimension() != snap.dim) {
		return nil, incompatible("index holds %d vectors of dimension %d", idx.Len(), idx.Dimension())
	}
	snap.idx = idx
	snap.kind = kind
	return snap, nil
}

func readMeta(ctx context.Context, db *sql.DB, path string) (*Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("store: %s is not an index file: %v: %w", path, err, vector.ErrIncompatibleIndex)
	}
	defer rows.Close()
	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	meta := &Meta{
		Model:   values[metaModel],
		Kind:    index.Kind(values[metaKind]),
		BuildID: values[metaBuildID],
	}
	if meta.Dimension, err = strconv.Atoi(values[metaDimension]); err != nil || meta.Dimension < 0 {
		return nil, fmt.Errorf("store: %s: invalid dimension %q: %w", path, values[metaDimension], vector.ErrIncompatibleIndex)
	}
	if meta.Count, err = strconv.Atoi(values[metaCount]); err != nil || meta.Count < 0 {
		return nil, fmt.Errorf("store: %s: invalid count %q: %w", path, values[metaCount], vector.ErrIncompatibleIndex)
	}
	if ts := values[metaCreatedAt]; ts != "" {
		if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("store: %s: invalid created_at %q: %w", path, ts, vector.ErrIncompatibleIndex)
		}
	}
	return meta, nil
}

// openExisting opens path without creating it.
func openExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db, err := engine.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %v: %w", path, err, vector.ErrIncompatibleIndex)
	}
	return db, nil
}

func entriesOf(snap *snapshot) []vector.Entry {
	entries := make([]vector.Entry, len(snap.chunks))
	for i := range snap.chunks {
		entries[i] = vector.Entry{Embedding: snap.embeddings[i], Chunk: snap.chunks[i]}
	}
	return entries
}
