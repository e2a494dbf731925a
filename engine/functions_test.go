package engine

import (
	"math"
	"testing"

	"github.com/viant/sqlite-rag/vector"
)

func TestRegisterVectorFunctionsAndUse(t *testing.T) {
	// Register globally before first connection so functions are available.
	if err := RegisterVectorFunctions(nil); err != nil {
		t.Fatalf("RegisterVectorFunctions failed: %v", err)
	}
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	if err := RegisterVectorFunctions(db); err != nil {
		t.Fatalf("RegisterVectorFunctions failed: %v", err)
	}

	aBlob := vector.EncodeEmbedding([]float32{1, 0})
	bBlob := vector.EncodeEmbedding([]float32{0, 1})
	cBlob := vector.EncodeEmbedding([]float32{1, 0})
	zeroBlob := vector.EncodeEmbedding([]float32{0, 0})
	threeFourBlob := vector.EncodeEmbedding([]float32{3, 4})

	var sim float64
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, bBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,b) query failed: %v", err)
	}
	if sim != 0 {
		t.Fatalf("vec_cosine(a,b) = %v, want 0", sim)
	}

	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, cBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,c) query failed: %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("vec_cosine(a,c) = %v, want 1", sim)
	}

	// zero-magnitude vectors rank as unrelated instead of failing
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, zeroBlob, aBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(zero,a) query failed: %v", err)
	}
	if sim != 0 {
		t.Fatalf("vec_cosine(zero,a) = %v, want 0", sim)
	}

	var dist float64
	if err := db.QueryRow(`SELECT vec_l2(?, ?)`, zeroBlob, threeFourBlob).Scan(&dist); err != nil {
		t.Fatalf("vec_l2 query failed: %v", err)
	}
	if math.Abs(dist-5) > 1e-6 {
		t.Fatalf("vec_l2 = %v, want 5", dist)
	}

	var null *float64
	if err := db.QueryRow(`SELECT vec_cosine(NULL, ?)`, aBlob).Scan(&null); err != nil {
		t.Fatalf("vec_cosine(NULL,a) query failed: %v", err)
	}
	if null != nil {
		t.Fatalf("vec_cosine(NULL,a) = %v, want NULL", *null)
	}

	mismatch := vector.EncodeEmbedding([]float32{1, 2, 3})
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, mismatch).Scan(&sim); err == nil {
		t.Fatalf("expected error for mismatched dimensions")
	}
}
