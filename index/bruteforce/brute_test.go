package bruteforce

import (
	"errors"
	"testing"

	"github.com/viant/sqlite-rag/vector"
)

func TestQueryOrdersByCosine(t *testing.T) {
	idx := &Index{}
	ids := []string{"a", "b", "c"}
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	if err := idx.Build(ids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	gotIDs, scores, err := idx.Query([]float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(gotIDs) != 2 || gotIDs[0] != "a" || gotIDs[1] != "c" {
		t.Fatalf("unexpected ids: %v", gotIDs)
	}
	if scores[0] < scores[1] {
		t.Fatalf("scores not descending: %v", scores)
	}
}

func TestQueryTiesKeepBuildOrder(t *testing.T) {
	idx := &Index{}
	ids := []string{"x", "y", "z", "w"}
	vecs := [][]float32{{0, 1}, {2, 0}, {1, 0}, {3, 0}}
	if err := idx.Build(ids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	gotIDs, _, err := idx.Query([]float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"y", "z", "w", "x"}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, gotIDs, want)
		}
	}
}

func TestZeroVectorsScoreZero(t *testing.T) {
	idx := &Index{}
	if err := idx.Build([]string{"zero", "neg"}, [][]float32{{0, 0}, {-1, 0}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ids, scores, err := idx.Query([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "zero" || scores[0] != 0 || scores[1] != -1 {
		t.Fatalf("unexpected result: %v %v", ids, scores)
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	idx := &Index{}
	err := idx.Build([]string{"a", "b"}, [][]float32{{1, 2}, {1}})
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestQueryDimensionMismatch(t *testing.T) {
	idx := &Index{}
	if err := idx.Build([]string{"a"}, [][]float32{{1, 2}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, _, err := idx.Query([]float32{1, 2, 3}, 1); err == nil {
		t.Fatalf("expected error for query dim mismatch")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	idx := &Index{}
	ids := []string{"doc#0", "doc#1", "other#0"}
	vecs := [][]float32{{0.1, 0.2, 0.3}, {-1, 0, 1}, {0.5, 0.5, 0}}
	if err := idx.Build(ids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	blob, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored := &Index{}
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.Len() != 3 || restored.Dimension() != 3 {
		t.Fatalf("unexpected shape: len=%d dim=%d", restored.Len(), restored.Dimension())
	}
	q := []float32{0.2, 0.1, 0.4}
	a, as, _ := idx.Query(q, 3)
	b, bs, _ := restored.Query(q, 3)
	for i := range a {
		if a[i] != b[i] || as[i] != bs[i] {
			t.Fatalf("mismatch at %d: %v/%v vs %v/%v", i, a, as, b, bs)
		}
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	idx := &Index{}
	if err := idx.Build([]string{"a"}, [][]float32{{1, 2}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	blob, _ := idx.MarshalBinary()
	for _, data := range [][]byte{nil, blob[:5], blob[:len(blob)-2], append(append([]byte{}, blob...), 0)} {
		if err := (&Index{}).UnmarshalBinary(data); err == nil {
			t.Fatalf("expected error for %d bytes", len(data))
		}
	}
}

func TestEmptyIndex(t *testing.T) {
	idx := &Index{}
	if err := idx.Build(nil, nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ids, _, err := idx.Query([]float32{1}, 3)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty result, got %v %v", ids, err)
	}
	blob, _ := idx.MarshalBinary()
	if err := (&Index{}).UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
}
