package vector

import "math"

// Relevance is the ranking score used by every index in this module: cosine
// similarity in [-1, 1], with zero-magnitude or mismatched vectors scoring 0.
// Callers must check dimensions beforehand if a mismatch is an error for them.
func Relevance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	dot, na2, nb2 := sums(a, b)
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// RelevanceWithMagnitudes computes Relevance for vectors whose magnitudes are
// already known. It yields bit-identical results to Relevance when the
// magnitudes come from Magnitude.
func RelevanceWithMagnitudes(a []float32, am float64, b []float32, bm float64) float64 {
	if am == 0 || bm == 0 || len(a) != len(b) {
		return 0
	}
	return Dot(a, b) / (am * bm)
}

// Dot returns the float64 dot product of a and b.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 { return math.Sqrt(Dot(v, v)) }

func sums(a, b []float32) (dot, na2, nb2 float64) {
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	return dot, na2, nb2
}
