package domain

import "math"

// Point is a landmark position in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// BoundingBox is a face rectangle in image pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// IoU returns the intersection over union of two boxes.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	x1 := math.Max(b.X, o.X)
	y1 := math.Max(b.Y, o.Y)
	x2 := math.Min(b.X+b.Width, o.X+o.Width)
	y2 := math.Min(b.Y+b.Height, o.Y+o.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Landmarks groups facial landmark points by feature.
// Eye groups follow the 6-point contour order: outer corner, two upper lid
// points, inner corner, two lower lid points.
// Mouth is an ordered contour.
type Landmarks struct {
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
	Nose     []Point `json:"nose"`
	Mouth    []Point `json:"mouth"`
}

// NoseCenter returns the centroid of the nose group.
func (l Landmarks) NoseCenter() (Point, bool) {
	return Centroid(l.Nose)
}

// Centroid returns the mean point of a group.
func Centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: c.X / n, Y: c.Y / n}, true
}

// Pose is head orientation in degrees.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// DetectionResult is the output of the face model for a single face.
type DetectionResult struct {
	Box         BoundingBox        `json:"box"`
	Confidence  float64            `json:"confidence"`
	Landmarks   Landmarks          `json:"landmarks"`
	Descriptor  []float64          `json:"descriptor,omitempty"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
	Age         float64            `json:"age"`
	Gender      string             `json:"gender,omitempty"`

	// Pose is set when the model reports head orientation directly.
	Pose *Pose `json:"pose,omitempty"`
}

// Detection is the tagged outcome of running the face model on an image:
// either a single detected face or NotFound. FaceCount reports how many
// faces survived filtering so callers can reject ambiguous input.
type Detection struct {
	Found     bool              `json:"found"`
	FaceCount int               `json:"face_count"`
	Result    DetectionResult   `json:"result"`
	Faces     []DetectionResult `json:"-"`
}

// Detected builds a Detection holding the given faces.
func Detected(faces []DetectionResult) Detection {
	if len(faces) == 0 {
		return NotFound()
	}
	return Detection{
		Found:     true,
		FaceCount: len(faces),
		Result:    faces[0],
		Faces:     faces,
	}
}

// NotFound is the Detection for an image without faces.
func NotFound() Detection {
	return Detection{}
}

// Ambiguous reports whether more than one face was found.
func (d Detection) Ambiguous() bool {
	return d.FaceCount > 1
}

// DetectOptions tunes a single detection call.
type DetectOptions struct {
	MinConfidence  float64
	IoUThreshold   float64
	RequireFrontal bool
	UseGPU         bool
	// SkipCache forces a fresh model call.
	SkipCache bool
}
