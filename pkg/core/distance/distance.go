// Package distance provides the similarity function used by the vektor graph.
//
// Vectors are compared with cosine similarity. The float32 kernel is
// dispatched at init time: the Gonum BLAS implementation (which handles SIMD
// internally) replaces the pure Go reference loop.
package distance

import (
	"errors"
	"math"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// ErrLengthMismatch is returned when two vectors of different length are compared.
var ErrLengthMismatch = errors.New("vectors must have the same length")

// SimilarityFunc computes a similarity score between two equal-length vectors.
type SimilarityFunc func(v1, v2 []float32) (float64, error)

var (
	cosineImpl  SimilarityFunc = cosineGo
	backendName                = "pure go"
)

func init() {
	cosineImpl = cosineGonum
	backendName = "gonum"
}

// Cosine returns the cosine similarity of v1 and v2, in [-1, 1].
// It is 0 when either vector has zero norm.
func Cosine(v1, v2 []float32) (float64, error) {
	return cosineImpl(v1, v2)
}

// Backend describes the active kernel and the SIMD extensions the CPU offers.
func Backend() string {
	var feats []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			feats = append(feats, f.name)
		}
	}
	if len(feats) == 0 {
		return backendName
	}
	return backendName + " (" + strings.Join(feats, ",") + ")"
}

// cosineGo is the pure Go reference implementation.
func cosineGo(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	var dot, normA, normB float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dot += a * b
		normA += a * a
		normB += b * b
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

var gonumEngine = gonum.Implementation{}

// cosineGonum uses the Gonum BLAS level-1 routines.
func cosineGonum(v1, v2 []float32) (float64, error) {
	n := len(v1)
	if n != len(v2) {
		return 0, ErrLengthMismatch
	}
	if n == 0 {
		return 0, nil
	}
	normA := gonumEngine.Snrm2(n, v1, 1)
	normB := gonumEngine.Snrm2(n, v2, 1)
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	dot := gonumEngine.Sdot(n, v1, 1, v2, 1)
	return float64(dot) / (float64(normA) * float64(normB)), nil
}
