// Package imaging adapts decoded images to the pixel access the engine needs.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder

	_ "golang.org/x/image/webp" // register decoder

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Source gives the engine read access to a captured frame. Adapters own
// their pixel storage; nothing here mutates shared state.
type Source interface {
	Width() int
	Height() int
	// Luma returns the 8-bit luminance at (x, y). Callers stay in bounds.
	Luma(x, y int) uint8
	// Encoded returns the frame in a wire format the face model accepts.
	Encoded() ([]byte, error)
}

// DepthSource is implemented by frames captured with a depth or stereo
// sensor. ok is false where the sensor has no reading.
type DepthSource interface {
	Source
	Depth(x, y int) (value float64, ok bool)
}

// Gray is an in-memory luminance plane.
type Gray struct {
	w, h    int
	pix     []uint8
	encoded []byte

	once   sync.Once
	encErr error
}

var _ Source = (*Gray)(nil)

// passthroughFormats are kept byte for byte; anything else is rendered to
// PNG before it reaches a face model.
var passthroughFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
}

// Decode parses a JPEG, PNG, GIF or WebP payload. JPEG and PNG bytes are
// kept as the encoded form.
func Decode(data []byte) (*Gray, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	g := FromImage(img)
	if passthroughFormats[format] {
		g.encoded = data
	}
	return g, nil
}

// FromImage converts any image.Image to a luminance plane.
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			pix[y*w+x] = luminance(r, gr, bl)
		}
	}

	return &Gray{w: w, h: h, pix: pix}
}

// NewGray wraps a row-major luminance buffer of w*h bytes.
func NewGray(w, h int, pix []uint8) *Gray {
	if w < 0 || h < 0 || len(pix) < w*h {
		return &Gray{}
	}
	return &Gray{w: w, h: h, pix: pix}
}

// luminance uses ITU-R BT.601 weights on 16-bit channels.
func luminance(r, g, b uint32) uint8 {
	l := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
	return uint8(math.Min(255, math.Max(0, l)))
}

func (g *Gray) Width() int  { return g.w }
func (g *Gray) Height() int { return g.h }

func (g *Gray) Luma(x, y int) uint8 {
	return g.pix[y*g.w+x]
}

// Encoded returns the original payload, or a PNG rendering for planes built
// in memory.
func (g *Gray) Encoded() ([]byte, error) {
	if g.encoded != nil {
		return g.encoded, nil
	}

	g.once.Do(func() {
		img := &image.Gray{
			Pix:    g.pix,
			Stride: g.w,
			Rect:   image.Rect(0, 0, g.w, g.h),
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			g.encErr = domain.ErrInvalidImage.WithError(err)
			return
		}
		g.encoded = buf.Bytes()
	})

	return g.encoded, g.encErr
}

// WithDepth pairs a frame with a row-major depth map of the same size.
// Non-positive or NaN readings are treated as missing.
func WithDepth(src Source, depth []float64) DepthSource {
	return &depthFrame{Source: src, depth: depth}
}

// DecodeDepth pairs src with a depth map sent as a grayscale PNG of the
// same size. 16-bit maps carry sensor units directly and 8-bit maps are
// widened to 16 bits. Zero means no reading.
func DecodeDepth(src Source, data []byte) (DepthSource, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("depth map is empty"))
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("depth map: %w", err))
	}

	b := img.Bounds()
	if b.Dx() != src.Width() || b.Dy() != src.Height() {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("depth map %dx%d does not match frame %dx%d",
			b.Dx(), b.Dy(), src.Width(), src.Height()))
	}

	depth := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			depth[y*b.Dx()+x] = float64(v.Y)
		}
	}
	return WithDepth(src, depth), nil
}

type depthFrame struct {
	Source
	depth []float64
}

func (d *depthFrame) Depth(x, y int) (float64, bool) {
	i := y*d.Width() + x
	if i < 0 || i >= len(d.depth) {
		return 0, false
	}
	v := d.depth[i]
	if math.IsNaN(v) || v <= 0 {
		return 0, false
	}
	return v, true
}
