package store

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/vector"
)

func entry(source string, ordinal int, content string, emb ...float32) vector.Entry {
	return vector.Entry{
		Embedding: emb,
		Chunk: vector.Chunk{
			ID:          vector.ChunkID(source, ordinal),
			Source:      source,
			Content:     content,
			StartOffset: ordinal * 10,
			Ordinal:     ordinal,
		},
	}
}

func randomEntries(rng *rand.Rand, n, dim int) []vector.Entry {
	entries := make([]vector.Entry, n)
	for i := range entries {
		emb := make([]float32, dim)
		for d := range emb {
			emb[d] = float32(rng.NormFloat64())
		}
		entries[i] = entry("doc"+strconv.Itoa(i%7), i, "chunk "+strconv.Itoa(i), emb...)
	}
	return entries
}

func TestVectorIndex_Search(t *testing.T) {
	ctx := context.Background()
	v := New()
	require.NoError(t, v.Build(ctx, []vector.Entry{
		entry("a", 0, "sky", 1, 0),
		entry("b", 0, "grass", 0, 1),
		entry("c", 0, "both", 1, 1),
	}))
	results, err := v.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "sky", results[0].Chunk.Content)
	assert.Equal(t, "both", results[1].Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)

	results, err = v.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestVectorIndex_BuildCopiesEmbeddings(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []index.Kind{index.KindBrute, index.KindCover} {
		t.Run(string(kind), func(t *testing.T) {
			sky := []float32{1, 0}
			v := New(WithKind(kind))
			require.NoError(t, v.Build(ctx, []vector.Entry{
				entry("a", 0, "sky", sky...),
				entry("b", 0, "grass", 0, 1),
			}))
			sky[0], sky[1] = 0, -1

			results, err := v.Search(ctx, []float32{1, 0}, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "sky", results[0].Chunk.Content)
			assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		})
	}
}

func TestVectorIndex_SearchTiesKeepBuildOrder(t *testing.T) {
	ctx := context.Background()
	v := New()
	require.NoError(t, v.Build(ctx, []vector.Entry{
		entry("x", 0, "first", 2, 0),
		entry("x", 1, "second", 1, 0),
		entry("x", 2, "third", 5, 0),
	}))
	results, err := v.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x", "x"}, vector.Sources(results))
	assert.Equal(t, "first", results[0].Chunk.Content)
	assert.Equal(t, "second", results[1].Chunk.Content)
	assert.Equal(t, "third", results[2].Chunk.Content)
}

func TestVectorIndex_SearchErrors(t *testing.T) {
	ctx := context.Background()
	v := New()

	results, err := v.Search(ctx, []float32{1, 2}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = v.Search(ctx, []float32{1, 2}, 0)
	assert.ErrorIs(t, err, vector.ErrInvalidArgument)

	require.NoError(t, v.Build(ctx, []vector.Entry{entry("a", 0, "a", 1, 2)}))
	_, err = v.Search(ctx, []float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, vector.ErrIncompatibleIndex)
}

func TestVectorIndex_BuildDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	v := New()
	require.NoError(t, v.Build(ctx, []vector.Entry{entry("a", 0, "a", 1, 2)}))
	err := v.Build(ctx, []vector.Entry{
		entry("a", 0, "a", 1, 2),
		entry("a", 1, "b", 1, 2, 3),
	})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	// previous contents survive a failed build
	assert.Equal(t, 1, v.Len())
	assert.Equal(t, 2, v.Dimension())

	err = v.Build(ctx, []vector.Entry{{Chunk: vector.Chunk{ID: "empty"}}})
	assert.ErrorIs(t, err, vector.ErrInvalidArgument)
}

func TestVectorIndex_KindsAgree(t *testing.T) {
	ctx := context.Background()
	entries := randomEntries(rand.New(rand.NewSource(3)), 300, 12)
	brute := New(WithKind(index.KindBrute))
	cover := New(WithKind(index.KindCover))
	require.NoError(t, brute.Build(ctx, entries))
	require.NoError(t, cover.Build(ctx, entries))
	assert.Equal(t, index.KindBrute, brute.Kind())
	assert.Equal(t, index.KindCover, cover.Kind())

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		q := randomEntries(rng, 1, 12)[0].Embedding
		want, err := brute.Search(ctx, q, 5)
		require.NoError(t, err)
		got, err := cover.Search(ctx, q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestVectorIndex_PersistReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.sqlite")
	entries := randomEntries(rand.New(rand.NewSource(5)), 40, 8)
	v := New(WithModel("hash-8"))
	require.NoError(t, v.Build(ctx, entries))
	require.NoError(t, v.Persist(ctx, path))

	meta, err := ReadMeta(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 8, meta.Dimension)
	assert.Equal(t, 40, meta.Count)
	assert.Equal(t, "hash-8", meta.Model)
	assert.Equal(t, index.KindBrute, meta.Kind)
	assert.NotEmpty(t, meta.BuildID)

	reloaded := New(WithModel("hash-8"))
	require.NoError(t, reloaded.Reload(ctx, path, 8))
	assert.Equal(t, 40, reloaded.Len())
	assert.False(t, reloaded.Empty())

	q := entries[3].Embedding
	want, err := v.Search(ctx, q, 5)
	require.NoError(t, err)
	got, err := reloaded.Search(ctx, q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	scanned, err := ScanPersisted(ctx, path, q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, scanned)

	matches, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorIndex_PersistReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	v := New()
	require.NoError(t, v.Build(ctx, randomEntries(rand.New(rand.NewSource(1)), 10, 4)))
	require.NoError(t, v.Persist(ctx, path))
	require.NoError(t, v.Build(ctx, []vector.Entry{entry("only", 0, "only", 1, 0, 0, 0)}))
	require.NoError(t, v.Persist(ctx, path))

	reloaded := New()
	require.NoError(t, reloaded.Reload(ctx, path, 0))
	assert.Equal(t, 1, reloaded.Len())
}

func TestVectorIndex_PersistEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	require.NoError(t, New().Persist(ctx, path))

	reloaded := New()
	require.NoError(t, reloaded.Reload(ctx, path, 16))
	assert.Equal(t, 0, reloaded.Len())
	results, err := reloaded.Search(ctx, make([]float32, 16), 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_ReloadIncompatible(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.sqlite")
	v := New(WithModel("model-a"))
	require.NoError(t, v.Build(ctx, []vector.Entry{entry("a", 0, "a", 1, 2, 3)}))
	require.NoError(t, v.Persist(ctx, path))

	err := New().Reload(ctx, path, 4)
	assert.ErrorIs(t, err, vector.ErrIncompatibleIndex)

	err = New(WithModel("model-b")).Reload(ctx, path, 3)
	assert.ErrorIs(t, err, vector.ErrIncompatibleIndex)

	garbage := filepath.Join(dir, "garbage.sqlite")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a database file, just text padding it out"), 0o644))
	err = New().Reload(ctx, garbage, 0)
	assert.ErrorIs(t, err, vector.ErrIncompatibleIndex)

	err = New().Reload(ctx, filepath.Join(dir, "missing.sqlite"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVectorIndex_ReloadRebuildsMissingBlob(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	entries := randomEntries(rand.New(rand.NewSource(9)), 12, 6)
	v := New()
	require.NoError(t, v.Build(ctx, entries))
	require.NoError(t, v.Persist(ctx, path))

	db, err := openExisting(path)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM vector_storage`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reloaded := New()
	require.NoError(t, reloaded.Reload(ctx, path, 6))
	want, _ := v.Search(ctx, entries[0].Embedding, 3)
	got, err := reloaded.Search(ctx, entries[0].Embedding, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVectorIndex_ConcurrentSearchDuringBuild(t *testing.T) {
	ctx := context.Background()
	v := New()
	first := randomEntries(rand.New(rand.NewSource(2)), 50, 4)
	require.NoError(t, v.Build(ctx, first))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				results, err := v.Search(ctx, []float32{1, 0, 0, 0}, 3)
				assert.NoError(t, err)
				assert.Len(t, results, 3)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, v.Build(ctx, randomEntries(rand.New(rand.NewSource(int64(i))), 30, 4)))
	}
	wg.Wait()
}

func TestScanPersisted_Errors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	v := New()
	require.NoError(t, v.Build(ctx, []vector.Entry{entry("a", 0, "a", 1, 2)}))
	require.NoError(t, v.Persist(ctx, path))

	_, err := ScanPersisted(ctx, path, []float32{1, 2}, 0)
	assert.ErrorIs(t, err, vector.ErrInvalidArgument)
	_, err = ScanPersisted(ctx, path, []float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, vector.ErrIncompatibleIndex)
}
