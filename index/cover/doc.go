// Package cover provides an exact vantage-point tree index. Vectors are
// normalised and arranged by Euclidean distance on the unit sphere, which is
// monotone in cosine similarity, so the tree prunes by the triangle inequality
// and still returns exactly what a brute-force scan would, ties included.
package cover
