package liveness

import (
	"errors"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// neutralNoseDrop is the nose centroid's distance below the eye line, as a
// fraction of the inter-ocular distance, on a frontal face.
const neutralNoseDrop = 0.4

var (
	errEyeContour = errors.New("eye contour needs 6 points")
	errPoseGroups = errors.New("pose needs both eyes and the nose")
)

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2|p0-p3|) over a 6-point
// eye contour. Closed eyes approach 0.
func EyeAspectRatio(eye []domain.Point) (float64, error) {
	if len(eye) < 6 {
		return 0, errEyeContour
	}

	a := eye[1].Distance(eye[5])
	b := eye[2].Distance(eye[4])
	c := eye[0].Distance(eye[3])
	if c == 0 || math.IsNaN(a+b+c) {
		return 0, errEyeContour
	}

	return (a + b) / (2 * c), nil
}

// MeanEyeAspectRatio averages the ratio over both eyes.
func MeanEyeAspectRatio(l domain.Landmarks) (float64, error) {
	left, err := EyeAspectRatio(l.LeftEye)
	if err != nil {
		return 0, err
	}
	right, err := EyeAspectRatio(l.RightEye)
	if err != nil {
		return 0, err
	}
	return (left + right) / 2, nil
}

// EstimatePose approximates head orientation from the eye-nose triangle.
// Roll is the eye line angle; yaw and pitch come from the nose offset in the
// roll-corrected frame, scaled by the inter-ocular distance.
func EstimatePose(l domain.Landmarks) (domain.Pose, error) {
	left, okL := domain.Centroid(l.LeftEye)
	right, okR := domain.Centroid(l.RightEye)
	nose, okN := l.NoseCenter()
	if !okL || !okR || !okN {
		return domain.Pose{}, errPoseGroups
	}

	// Measure from the eye that appears first in the image.
	if right.X < left.X {
		left, right = right, left
	}

	d := left.Distance(right)
	if d == 0 || math.IsNaN(d) {
		return domain.Pose{}, errPoseGroups
	}

	angle := math.Atan2(right.Y-left.Y, right.X-left.X)
	mid := domain.Point{X: (left.X + right.X) / 2, Y: (left.Y + right.Y) / 2}
	dx, dy := nose.X-mid.X, nose.Y-mid.Y

	cos, sin := math.Cos(angle), math.Sin(angle)
	u := dx*cos + dy*sin
	v := -dx*sin + dy*cos

	return domain.Pose{
		Yaw:   degrees(math.Atan(2 * u / d)),
		Pitch: degrees(math.Atan((v/d - neutralNoseDrop) / neutralNoseDrop)),
		Roll:  degrees(angle),
	}, nil
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
