// Package similarity compares face descriptors.
package similarity

import (
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Thresholds decide a match. Cosine matches on similarity, L2 on distance.
type Thresholds struct {
	MinSimilarity float64
	MaxDistance   float64
}

// Cosine calculates the cosine similarity between two embedding vectors.
// Returns a value between -1.0 (opposite) and 1.0 (identical).
// For face embeddings, values > 0.8 typically indicate a match.
func Cosine(a, b []float64) (float64, error) {
	if err := check(a, b); err != nil {
		return 0, err
	}

	var dotProduct, norm1, norm2 float64
	for i := range a {
		dotProduct += a[i] * b[i]
		norm1 += a[i] * a[i]
		norm2 += b[i] * b[i]
	}

	if norm1 == 0 || norm2 == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2)), nil
}

// L2 returns the Euclidean distance between two descriptors.
func L2(a, b []float64) (float64, error) {
	if err := check(a, b); err != nil {
		return 0, err
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Normalize scales an embedding vector to unit length.
// This is useful for consistent similarity calculations.
func Normalize(embedding []float64) []float64 {
	if len(embedding) == 0 {
		return embedding
	}

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}

	if norm == 0 {
		return embedding
	}

	norm = math.Sqrt(norm)
	normalized := make([]float64, len(embedding))
	for i, v := range embedding {
		normalized[i] = v / norm
	}

	return normalized
}

// Match compares a probe with an enrolled template under metric. Similarity
// for L2 is 1/(1+distance) and distance for cosine is 1-similarity.
func Match(metric domain.DistanceMetric, probe, enrolled []float64, t Thresholds) (domain.IdentityMatch, error) {
	m := domain.IdentityMatch{Metric: metric}

	switch metric {
	case domain.MetricCosine:
		sim, err := Cosine(probe, enrolled)
		if err != nil {
			return m, err
		}
		m.Similarity = sim
		m.Distance = 1 - sim
		m.Matched = sim >= t.MinSimilarity

	case domain.MetricL2:
		dist, err := L2(probe, enrolled)
		if err != nil {
			return m, err
		}
		m.Distance = dist
		m.Similarity = 1 / (1 + dist)
		m.Matched = dist <= t.MaxDistance

	default:
		return m, domain.ErrConfiguration.WithError(fmt.Errorf("unknown distance metric %q", metric))
	}

	return m, nil
}

func check(a, b []float64) error {
	if len(a) == 0 || len(b) == 0 {
		return domain.ErrDescriptorUnavailable
	}
	if len(a) != len(b) {
		return domain.ErrDescriptorMismatch.WithError(fmt.Errorf("dimensions %d and %d", len(a), len(b)))
	}
	return nil
}
