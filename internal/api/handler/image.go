package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/engine"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
	maxFrames    = 30
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Depth maps are lossless 16-bit grayscale.
var validDepthTypes = map[string]bool{
	"image/png": true,
}

// extractImage reads and decodes the "image" form file. An optional "depth"
// file, a grayscale PNG of the same size, is attached for depth analysis.
func extractImage(c *fiber.Ctx) (imaging.Source, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("image is required"))
	}
	img, err := readImage(file)
	if err != nil {
		return nil, err
	}

	depth, err := c.FormFile("depth")
	if err != nil {
		return img, nil
	}
	return readDepth(img, depth)
}

// extractFrames reads every "frames" form file. Optional "captured_at"
// values, one per frame, are RFC 3339 timestamps or unix milliseconds.
// Optional "depths" files pair with frames by position.
func extractFrames(c *fiber.Ctx) ([]engine.Frame, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("multipart form is required"))
	}

	files := form.File["frames"]
	if len(files) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("at least one frame is required"))
	}
	if len(files) > maxFrames {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("at most %d frames are accepted", maxFrames))
	}

	stamps := form.Value["captured_at"]
	if len(stamps) > 0 && len(stamps) != len(files) {
		return nil, domain.ErrValidationFailed.WithError(
			fmt.Errorf("captured_at has %d values for %d frames", len(stamps), len(files)))
	}

	depths := form.File["depths"]
	if len(depths) > 0 && len(depths) != len(files) {
		return nil, domain.ErrValidationFailed.WithError(
			fmt.Errorf("depths has %d files for %d frames", len(depths), len(files)))
	}

	frames := make([]engine.Frame, len(files))
	for i, fh := range files {
		img, err := readImage(fh)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if len(depths) > 0 {
			if img, err = readDepth(img, depths[i]); err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		}
		frames[i].Image = img

		if len(stamps) > 0 {
			at, err := parseTimestamp(stamps[i])
			if err != nil {
				return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("captured_at[%d]: %w", i, err))
			}
			frames[i].CapturedAt = at
		}
	}

	return frames, nil
}

func readImage(file *multipart.FileHeader) (imaging.Source, error) {
	data, err := readUpload(file, validImageTypes)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(data)
}

func readDepth(img imaging.Source, file *multipart.FileHeader) (imaging.Source, error) {
	data, err := readUpload(file, validDepthTypes)
	if err != nil {
		return nil, err
	}
	return imaging.DecodeDepth(img, data)
}

func readUpload(file *multipart.FileHeader, types map[string]bool) ([]byte, error) {
	if file.Size == 0 || file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image size %d out of range", file.Size))
	}

	contentType := file.Header.Get("Content-Type")
	if !types[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return data, nil
}

func parseTimestamp(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
