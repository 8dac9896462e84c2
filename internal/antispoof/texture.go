package antispoof

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// lbpNeighbours walks the 8-neighbourhood clockwise from the top-left.
var lbpNeighbours = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1},
	{-1, 1}, {-1, 0},
}

// Texture scores the face region by the entropy of its local binary pattern
// histogram, normalized by the 8 bits of a 256-bin histogram. Printed and
// screen replays flatten micro texture and lower the entropy.
func Texture(ctx context.Context, in Input) (float64, error) {
	if in.Frame == nil {
		return 0, fmt.Errorf("texture: no frame")
	}
	r := imaging.FaceRegion(in.Frame, in.Face.Box)
	if r.Dx() < 3 || r.Dy() < 3 {
		return 0, fmt.Errorf("texture: face region %v too small", r)
	}

	var hist [256]float64
	var total float64
	for y := r.Min.Y + 1; y < r.Max.Y-1; y++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for x := r.Min.X + 1; x < r.Max.X-1; x++ {
			center := in.Frame.Luma(x, y)
			var pattern uint8
			for bit, n := range lbpNeighbours {
				if in.Frame.Luma(x+n[0], y+n[1]) >= center {
					pattern |= 1 << bit
				}
			}
			hist[pattern]++
			total++
		}
	}

	p := hist[:]
	floats.Scale(1/total, p)
	// stat.Entropy is in nats; 8 bits of a 256-bin histogram is ln 256.
	return math.Min(stat.Entropy(p)/math.Log(256), 1), nil
}
