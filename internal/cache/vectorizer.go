package cache

import (
	"hash/fnv"
	"math"
	"strings"
)

// VectorDim is the dimensionality of the hashed bag-of-words embedding used
// for semantic matching. Cheap, deterministic, and dependency-free; swapping
// in a real embedding model only requires keeping the cosine contract.
const VectorDim = 128

// Vectorize maps text onto a fixed-size, L2-normalized vector. Each word is
// hashed into a bucket with a weight that decays by position, so the opening
// of a message dominates the match.
func Vectorize(text string) []float64 {
	vec := make([]float64, VectorDim)
	words := strings.Fields(normalize(text))
	for i, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		bucket := int(h.Sum32() % VectorDim)
		vec[bucket] += 1.0 / (1.0 + 0.1*float64(i))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero vectors. Inputs from Vectorize are already unit length.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
