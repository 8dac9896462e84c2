package antispoof

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// motionFloor is the mean absolute luma change per pixel between frames
// that counts as full micro-motion.
const motionFloor = 1.5

var errFewFrames = errors.New("motion needs at least two frames")

// Motion scores micro-motion inside the face box across consecutive frames.
// Each pair contributes the mean of its activity (mean absolute difference
// relative to motionFloor) and its non-rigidity (coefficient of variation of
// per-block differences). A still photo has no activity; a photo moved as a
// whole changes every block alike.
func Motion(ctx context.Context, frames []imaging.Source, box domain.BoundingBox, blockSize int) (float64, error) {
	if len(frames) < 2 {
		return 0, errFewFrames
	}
	if blockSize < 2 {
		return 0, fmt.Errorf("block size %d too small", blockSize)
	}

	w, h := frames[0].Width(), frames[0].Height()
	for _, f := range frames[1:] {
		if f.Width() != w || f.Height() != h {
			return 0, fmt.Errorf("frame size %dx%d differs from %dx%d", f.Width(), f.Height(), w, h)
		}
	}

	r := imaging.FaceRegion(frames[0], box)
	if r.Dx() < blockSize || r.Dy() < blockSize {
		return 0, fmt.Errorf("face region %v smaller than one block", r)
	}

	var total float64
	for i := 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		total += pairMotion(frames[i-1], frames[i], r, blockSize)
	}
	return total / float64(len(frames)-1), nil
}

func pairMotion(prev, next imaging.Source, r image.Rectangle, blockSize int) float64 {
	var blocks []float64
	for by := r.Min.Y; by+blockSize <= r.Max.Y; by += blockSize {
		for bx := r.Min.X; bx+blockSize <= r.Max.X; bx += blockSize {
			var diff float64
			for y := by; y < by+blockSize; y++ {
				for x := bx; x < bx+blockSize; x++ {
					diff += math.Abs(float64(next.Luma(x, y)) - float64(prev.Luma(x, y)))
				}
			}
			blocks = append(blocks, diff/float64(blockSize*blockSize))
		}
	}

	mean, std := stat.PopMeanStdDev(blocks, nil)
	if mean == 0 {
		return 0
	}

	activity := math.Min(mean/motionFloor, 1)
	nonRigid := math.Min(std/mean, 1)
	return (activity + nonRigid) / 2
}
