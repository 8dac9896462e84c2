package repository

import "github.com/pgvector/pgvector-go"

// toVector converts a descriptor to the pgvector column type.
// An empty descriptor is stored as NULL.
func toVector(descriptor []float64) *pgvector.Vector {
	if len(descriptor) == 0 {
		return nil
	}
	floats := make([]float32, len(descriptor))
	for i, v := range descriptor {
		floats[i] = float32(v)
	}
	vec := pgvector.NewVector(floats)
	return &vec
}

func fromVector(vec *pgvector.Vector) []float64 {
	if vec == nil || vec.Slice() == nil {
		return nil
	}
	out := make([]float64, len(vec.Slice()))
	for i, v := range vec.Slice() {
		out[i] = float64(v)
	}
	return out
}
