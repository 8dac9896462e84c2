package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates the image bytes cannot be sent to Rekognition
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrUnknownModel indicates a model name Rekognition does not serve
	ErrUnknownModel = errors.New("unknown model for rekognition")

	// ErrNoDescriptors indicates a recognition model was requested;
	// Rekognition DetectFaces never returns face descriptors
	ErrNoDescriptors = errors.New("rekognition does not return face descriptors")
)
