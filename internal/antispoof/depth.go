package antispoof

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

const minDepthSamples = 16

var errNoDepth = errors.New("frame carries no depth data")

// Depth scores the relief of the face surface. A plane is fitted to the
// depth readings inside the box by least squares; a printed photo or a
// screen leaves almost no residual. The residual standard deviation is
// scaled by relief and capped at 1.
func Depth(src imaging.DepthSource, box domain.BoundingBox, relief float64) (float64, error) {
	r := imaging.FaceRegion(src, box)
	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y) / 2

	var design, zs []float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			z, ok := src.Depth(x, y)
			if !ok {
				continue
			}
			design = append(design, 1, float64(x)-cx, float64(y)-cy)
			zs = append(zs, z)
		}
	}
	if len(zs) < minDepthSamples {
		return 0, fmt.Errorf("%w: %d readings in face region", errNoDepth, len(zs))
	}

	residual, err := planeResidual(mat.NewDense(len(zs), 3, design), mat.NewVecDense(len(zs), zs))
	if err != nil {
		return 0, err
	}
	return math.Min(residual/relief, 1), nil
}

// planeResidual fits z = a + b*x + c*y over the rows of design and returns
// the root mean square of what the plane leaves unexplained.
func planeResidual(design *mat.Dense, z *mat.VecDense) (float64, error) {
	var coef mat.VecDense
	if err := coef.SolveVec(design, z); err != nil {
		return 0, fmt.Errorf("depth readings are degenerate: %w", err)
	}

	var res mat.VecDense
	res.MulVec(design, &coef)
	res.SubVec(z, &res)
	return mat.Norm(&res, 2) / math.Sqrt(float64(z.Len())), nil
}
