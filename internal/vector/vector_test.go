package vector

import (
	"math"
	"testing"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{0.3, 0.5, 0.1}
	if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-9 {
		t.Fatalf("CosineSimilarity(v, v) = %v, want 1", got)
	}
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("CosineSimilarity() = %v, want 0", got)
	}
}

func TestCosineSimilarityClampsNegativeToZero(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Fatalf("CosineSimilarity() = %v, want 0 for opposite vectors", got)
	}
}

func TestCosineSimilarityZeroNormNeverMatches(t *testing.T) {
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("CosineSimilarity() = %v, want 0 for zero-norm vector", got)
	}
	if got := CosineSimilarity([]float32{1, 1}, []float32{0, 0}); got != 0 {
		t.Fatalf("CosineSimilarity() = %v, want 0 for zero-norm candidate", got)
	}
}

func TestCosineSimilarityLengthMismatch(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2}); got != 0 {
		t.Fatalf("CosineSimilarity() = %v, want 0 for mismatched lengths", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := []float32{0.25, -1.5, 3.75, 0}
	decoded, err := Decode(Encode(original))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("Decode() length = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("Decode() should reject payloads that are not multiples of 4 bytes")
	}
}
