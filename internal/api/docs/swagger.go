package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ScoresData represents the three decision gates
type ScoresData struct {
	Liveness     float64 `json:"liveness" example:"0.92"`
	AntiSpoofing float64 `json:"anti_spoofing" example:"0.81"`
	Quality      float64 `json:"quality" example:"0.77"`
}

// QualityData represents the quality breakdown
type QualityData struct {
	Brightness float64 `json:"brightness" example:"1"`
	Sharpness  float64 `json:"sharpness" example:"0.84"`
	Contrast   float64 `json:"contrast" example:"0.75"`
	Resolution float64 `json:"resolution" example:"1"`
}

// LivenessData represents the liveness breakdown
type LivenessData struct {
	EyesOpen           bool    `json:"eyes_open" example:"true"`
	NaturalExpressions bool    `json:"natural_expressions" example:"true"`
	HeadPose           bool    `json:"head_pose" example:"true"`
	FaceSymmetry       float64 `json:"face_symmetry" example:"0.96"`
	Score              float64 `json:"score" example:"1"`
}

// AntiSpoofData represents the anti-spoofing breakdown
type AntiSpoofData struct {
	Score   float64 `json:"score" example:"0.81"`
	Texture float64 `json:"texture,omitempty" example:"0.81"`
	Motion  float64 `json:"motion,omitempty" example:"0.7"`
	Depth   float64 `json:"depth,omitempty" example:"0.9"`
}

// ChecksData represents the full decision breakdown
type ChecksData struct {
	Quality   QualityData   `json:"quality"`
	Liveness  LivenessData  `json:"liveness"`
	AntiSpoof AntiSpoofData `json:"anti_spoof"`
}

// DecisionResponse represents a liveness verification decision
type DecisionResponse struct {
	RequestID    string     `json:"request_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	IsLive       bool       `json:"is_live" example:"true"`
	Scores       ScoresData `json:"scores"`
	Checks       ChecksData `json:"checks"`
	FramesUsed   int        `json:"frames_used" example:"1"`
	ProcessingMs int64      `json:"processing_ms" example:"180"`
	DecidedAt    string     `json:"decided_at" example:"2026-03-01T08:00:00Z"`
}

// BoxData represents a face bounding box in pixels
type BoxData struct {
	X      float64 `json:"x" example:"120"`
	Y      float64 `json:"y" example:"80"`
	Width  float64 `json:"width" example:"210"`
	Height float64 `json:"height" example:"210"`
}

// FaceData represents one detected face
type FaceData struct {
	Box         BoxData            `json:"box"`
	Confidence  float64            `json:"confidence" example:"0.98"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
	Age         float64            `json:"age,omitempty" example:"29"`
	Gender      string             `json:"gender,omitempty" example:"female"`
}

// DetectResponse represents the response for detection
type DetectResponse struct {
	Found     bool       `json:"found" example:"true"`
	FaceCount int        `json:"face_count" example:"1"`
	Faces     []FaceData `json:"faces"`
}

// TemplateResponse represents an enrolled template
type TemplateResponse struct {
	ID           string  `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID       string  `json:"user_id" example:"student-42"`
	QualityScore float64 `json:"quality_score" example:"0.88"`
	CreatedAt    string  `json:"created_at" example:"2026-03-01T08:00:00Z"`
	UpdatedAt    string  `json:"updated_at" example:"2026-03-01T08:00:00Z"`
}

// MatchData represents the identity comparison
type MatchData struct {
	UserID     string  `json:"user_id" example:"student-42"`
	Metric     string  `json:"metric" example:"cosine"`
	Distance   float64 `json:"distance" example:"0.07"`
	Similarity float64 `json:"similarity" example:"0.93"`
	Matched    bool    `json:"matched" example:"true"`
}

// AttendanceResponse represents an attendance mark
type AttendanceResponse struct {
	Decision DecisionResponse `json:"decision"`
	Match    MatchData        `json:"match"`
	Accepted bool             `json:"accepted" example:"true"`
}

// ModelData represents one model lifecycle entry
type ModelData struct {
	Name     string `json:"name" example:"deepface"`
	State    string `json:"state" example:"ready"`
	Attempts int    `json:"attempts" example:"1"`
}

// HealthResponse represents health and readiness probes
type HealthResponse struct {
	Status   string      `json:"status" example:"ready"`
	Version  string      `json:"version,omitempty" example:"0.1.0"`
	Models   []ModelData `json:"models,omitempty"`
	Database string      `json:"database,omitempty" example:"up"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code      string `json:"code" example:"VALIDATION_FAILED"`
	Message   string `json:"message" example:"Request validation failed"`
	Details   string `json:"details,omitempty" example:"image is required"`
	RequestID string `json:"request_id" example:"6f1c1a2e-9b7d-4c1e-8f7a-2d3c4b5a6e7f"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errValidation   = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errRateLimit    = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests"}, "429", "Too Many Requests")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errModelLoad    = response.New(ErrorResponse{Code: "MODEL_LOAD_FAILED", Message: "Face model is not available"}, "503", "Service Unavailable")
	errTimeout      = response.New(ErrorResponse{Code: "TIMEOUT", Message: "Verification timed out"}, "504", "Gateway Timeout")
)

func imageErrors(extra ...response.Response) []response.Response {
	out := []response.Response{
		errUnauthorized,
		errValidation,
		response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity"),
		response.New(ErrorResponse{Code: "AMBIGUOUS_FACE", Message: "More than one face detected"}, "422", "Unprocessable Entity"),
	}
	out = append(out, extra...)
	return append(out, errRateLimit, errInternal, errModelLoad, errTimeout)
}

var (
	multipart = endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")})
	jsonOut   = endpoint.WithProduce([]mime.MIME{mime.JSON})
	apiKey    = endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}})
)

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Presenca Face Verification API",
		Version:     "v1.0.0",
		Description: "Liveness, anti-spoofing and identity checks for attendance marking",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/liveness
		endpoint.New(
			endpoint.POST,
			"/liveness",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Verify liveness of a single frame"),
			endpoint.WithDescription("Runs detection, quality, liveness and anti-spoofing on the image and returns the decision with every sub-score"),
			multipart, jsonOut,
			endpoint.WithParams(
				parameter.FileParam("image", parameter.WithRequired(), parameter.WithDescription("JPEG, PNG, GIF or WebP capture")),
				parameter.FileParam("depth", parameter.WithDescription("Grayscale PNG depth map of the same size, 0 for no reading")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DecisionResponse{}, "200", "Decision computed"),
			}),
			endpoint.WithErrors(imageErrors()),
			apiKey,
		),

		// POST /v1/liveness/sequence
		endpoint.New(
			endpoint.POST,
			"/liveness/sequence",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Verify liveness over a burst of frames"),
			endpoint.WithDescription("Frames after the configured time window are dropped. Blinks and expression changes across frames raise the liveness score"),
			multipart, jsonOut,
			endpoint.WithParams(
				parameter.FileParam("frames", parameter.WithRequired(), parameter.WithDescription("Ordered frames, up to 30")),
				parameter.StrParam("captured_at", parameter.Form, parameter.WithDescription("One RFC 3339 timestamp or unix milliseconds per frame")),
				parameter.FileParam("depths", parameter.WithDescription("One grayscale PNG depth map per frame")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DecisionResponse{}, "200", "Decision computed"),
			}),
			endpoint.WithErrors(imageErrors()),
			apiKey,
		),

		// POST /v1/detect
		endpoint.New(
			endpoint.POST,
			"/detect",
			endpoint.WithTags("Detection"),
			endpoint.WithSummary("Detect faces"),
			endpoint.WithDescription("Returns the filtered detections. Descriptors are never returned"),
			multipart, jsonOut,
			endpoint.WithParams(
				parameter.FileParam("image", parameter.WithRequired()),
				parameter.StrParam("min_confidence", parameter.Form, parameter.WithDescription("Override of the configured minimum confidence (0-1)")),
				parameter.BoolParam("require_frontal", parameter.Form, parameter.WithDescription("Reject faces turned beyond the configured pose angle")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectResponse{}, "200", "Detection completed"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errValidation, errRateLimit, errInternal, errModelLoad, errTimeout}),
			apiKey,
		),

		// POST /v1/templates/{user_id}
		endpoint.New(
			endpoint.POST,
			"/templates/{user_id}",
			endpoint.WithTags("Templates"),
			endpoint.WithSummary("Enroll a face template"),
			endpoint.WithDescription("Stores the descriptor of the single frontal face in the image, replacing any previous enrollment for the user"),
			multipart, jsonOut,
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithRequired()),
				parameter.FileParam("image", parameter.WithRequired()),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TemplateResponse{}, "201", "Template enrolled"),
			}),
			endpoint.WithErrors(imageErrors(
				response.New(ErrorResponse{Code: "LOW_QUALITY_IMAGE", Message: "Image quality is too low"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "DESCRIPTOR_UNAVAILABLE", Message: "Face model did not return a descriptor"}, "422", "Unprocessable Entity"),
			)),
			apiKey,
		),

		// DELETE /v1/templates/{user_id}
		endpoint.New(
			endpoint.DELETE,
			"/templates/{user_id}",
			endpoint.WithTags("Templates"),
			endpoint.WithSummary("Delete a face template"),
			endpoint.WithDescription("Deletes the user's biometric template (LGPD compliance)"),
			jsonOut,
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithRequired()),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Template deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "TEMPLATE_NOT_FOUND", Message: "No face template enrolled for this user"}, "404", "Not Found"),
				errInternal,
			}),
			apiKey,
		),

		// POST /v1/attendance/{user_id}
		endpoint.New(
			endpoint.POST,
			"/attendance/{user_id}",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Mark attendance"),
			endpoint.WithDescription("Verifies liveness and matches the face against the user's template. Accepted only when both pass"),
			multipart, jsonOut,
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithRequired()),
				parameter.FileParam("image", parameter.WithRequired()),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AttendanceResponse{}, "200", "Attendance evaluated"),
			}),
			endpoint.WithErrors(imageErrors(
				response.New(ErrorResponse{Code: "TEMPLATE_NOT_FOUND", Message: "No face template enrolled for this user"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "DESCRIPTOR_MISMATCH", Message: "Descriptor dimension does not match the enrolled template"}, "422", "Unprocessable Entity"),
			)),
			apiKey,
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
