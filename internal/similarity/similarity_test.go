package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestL2(t *testing.T) {
	d, err := L2([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-9)

	d, err = L2([]float64{1, 1}, []float64{1, 1})
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDimensionErrors(t *testing.T) {
	_, err := Cosine([]float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrDescriptorMismatch)

	_, err = L2(nil, []float64{1})
	assert.ErrorIs(t, err, domain.ErrDescriptorUnavailable)
}

func TestNormalize(t *testing.T) {
	n := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, n[0], 1e-9)
	assert.InDelta(t, 0.8, n[1], 1e-9)

	var norm float64
	for _, v := range n {
		norm += v * v
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-9)

	assert.Equal(t, []float64{0, 0}, Normalize([]float64{0, 0}))
	assert.Empty(t, Normalize(nil))
}

func TestMatch(t *testing.T) {
	th := Thresholds{MinSimilarity: 0.8, MaxDistance: 0.6}
	probe := []float64{1, 0, 0}

	tests := []struct {
		name        string
		metric      domain.DistanceMetric
		enrolled    []float64
		wantMatched bool
	}{
		{"cosine same direction", domain.MetricCosine, []float64{2, 0, 0}, true},
		{"cosine far", domain.MetricCosine, []float64{1, 1, 0}, false},
		{"l2 near", domain.MetricL2, []float64{1, 0.5, 0}, true},
		{"l2 far", domain.MetricL2, []float64{0, 1, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Match(tt.metric, probe, tt.enrolled, th)
			require.NoError(t, err)
			assert.Equal(t, tt.metric, m.Metric)
			assert.Equal(t, tt.wantMatched, m.Matched)
		})
	}

	_, err := Match("manhattan", probe, probe, th)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
