package imaging

import (
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Bounds returns the full frame rectangle.
func Bounds(src Source) image.Rectangle {
	return image.Rect(0, 0, src.Width(), src.Height())
}

// FaceRegion converts a detection box to a pixel rectangle clamped to the
// frame. An empty rectangle means the box lies outside the frame.
func FaceRegion(src Source, box domain.BoundingBox) image.Rectangle {
	r := image.Rect(
		int(math.Floor(box.X)),
		int(math.Floor(box.Y)),
		int(math.Ceil(box.X+box.Width)),
		int(math.Ceil(box.Y+box.Height)),
	)
	return r.Intersect(Bounds(src))
}

// MeanLuma returns the average luminance over r in [0, 255].
func MeanLuma(src Source, r image.Rectangle) float64 {
	if r.Empty() {
		return 0
	}
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += float64(src.Luma(x, y))
		}
	}
	return sum / float64(r.Dx()*r.Dy())
}
