package rekognition

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

func ptr[T any](v T) *T {
	return &v
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame() *imaging.Gray {
	pix := make([]uint8, 400*200)
	for i := range pix {
		pix[i] = uint8(i % 251)
	}
	return imaging.NewGray(400, 200, pix)
}

func landmark(t types.LandmarkType, x, y float32) types.Landmark {
	return types.Landmark{Type: t, X: ptr(x), Y: ptr(y)}
}

func fullFace() types.FaceDetail {
	return types.FaceDetail{
		BoundingBox: &types.BoundingBox{
			Left:   ptr(float32(0.25)),
			Top:    ptr(float32(0.1)),
			Width:  ptr(float32(0.5)),
			Height: ptr(float32(0.8)),
		},
		Confidence: ptr(float32(99.5)),
		Landmarks: []types.Landmark{
			landmark(types.LandmarkTypeLeftEyeLeft, 0.35, 0.3),
			landmark(types.LandmarkTypeLeftEyeRight, 0.45, 0.3),
			landmark(types.LandmarkTypeLeftEyeUp, 0.4, 0.28),
			landmark(types.LandmarkTypeLeftEyeDown, 0.4, 0.32),
			landmark(types.LandmarkTypeRightEyeLeft, 0.55, 0.3),
			landmark(types.LandmarkTypeRightEyeRight, 0.65, 0.3),
			landmark(types.LandmarkTypeRightEyeUp, 0.6, 0.28),
			landmark(types.LandmarkTypeRightEyeDown, 0.6, 0.32),
			landmark(types.LandmarkTypeNose, 0.5, 0.5),
			landmark(types.LandmarkTypeNoseLeft, 0.47, 0.52),
			landmark(types.LandmarkTypeNoseRight, 0.53, 0.52),
			landmark(types.LandmarkTypeMouthLeft, 0.42, 0.7),
			landmark(types.LandmarkTypeMouthUp, 0.5, 0.68),
			landmark(types.LandmarkTypeMouthRight, 0.58, 0.7),
		},
		Pose: &types.Pose{
			Yaw:   ptr(float32(4)),
			Pitch: ptr(float32(-2)),
			Roll:  ptr(float32(1)),
		},
		Emotions: []types.Emotion{
			{Type: types.EmotionNameCalm, Confidence: ptr(float32(80))},
			{Type: types.EmotionNameHappy, Confidence: ptr(float32(20))},
		},
		AgeRange: &types.AgeRange{Low: ptr(int32(24)), High: ptr(int32(32))},
		Gender:   &types.Gender{Value: types.GenderTypeFemale, Confidence: ptr(float32(98))},
	}
}

func TestProviderImplementsInterface(t *testing.T) {
	var _ provider.FaceModel = (*Provider)(nil)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "empty", size: 0, wantErr: true},
		{name: "too small", size: minImageSize - 1, wantErr: true},
		{name: "minimum", size: minImageSize, wantErr: false},
		{name: "maximum", size: maxImageSize, wantErr: false},
		{name: "too large", size: maxImageSize + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateImage(make([]byte, tt.size))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "nil error",
			err:     nil,
			wantErr: nil,
		},
		{
			name:    "non-AWS error",
			err:     assert.AnError,
			wantErr: assert.AnError,
		},
		{
			name:    "access denied",
			err:     &smithy.GenericAPIError{Code: errCodeAccessDenied, Message: "denied"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "invalid parameter",
			err:     &smithy.GenericAPIError{Code: errCodeInvalidParameter},
			wantErr: domain.ErrInvalidImage,
		},
		{
			name:    "invalid image format",
			err:     &smithy.GenericAPIError{Code: errCodeInvalidImageFormat},
			wantErr: domain.ErrInvalidImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseError(tt.err)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetect_Success(t *testing.T) {
	frame := testFrame()
	var sent *rekognition.DetectFacesInput
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			sent = params
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{fullFace()}}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	faces, err := p.Detect(context.Background(), frame, domain.DetectOptions{})

	require.NoError(t, err)
	require.Len(t, faces, 1)

	encoded, _ := frame.Encoded()
	require.NotNil(t, sent)
	assert.True(t, bytes.Equal(encoded, sent.Image.Bytes))
	assert.Equal(t, []types.Attribute{types.AttributeAll}, sent.Attributes)

	face := faces[0]
	assert.InDelta(t, 100, face.Box.X, 0.01)
	assert.InDelta(t, 20, face.Box.Y, 0.01)
	assert.InDelta(t, 200, face.Box.Width, 0.01)
	assert.InDelta(t, 160, face.Box.Height, 0.01)
	assert.InDelta(t, 0.995, face.Confidence, 0.001)

	require.Len(t, face.Landmarks.LeftEye, 6)
	require.Len(t, face.Landmarks.RightEye, 6)
	assert.InDelta(t, 140, face.Landmarks.LeftEye[0].X, 0.01)
	assert.InDelta(t, 60, face.Landmarks.LeftEye[0].Y, 0.01)
	assert.Equal(t, face.Landmarks.LeftEye[1], face.Landmarks.LeftEye[2])
	assert.Equal(t, face.Landmarks.LeftEye[4], face.Landmarks.LeftEye[5])
	assert.Len(t, face.Landmarks.Nose, 3)
	assert.Len(t, face.Landmarks.Mouth, 3)

	require.NotNil(t, face.Pose)
	assert.InDelta(t, 4, face.Pose.Yaw, 0.001)
	assert.InDelta(t, -2, face.Pose.Pitch, 0.001)

	assert.InDelta(t, 0.8, face.Expressions["calm"], 0.001)
	assert.InDelta(t, 0.2, face.Expressions["happy"], 0.001)
	assert.InDelta(t, 28, face.Age, 0.001)
	assert.Equal(t, "female", face.Gender)
	assert.Empty(t, face.Descriptor)
}

func TestDetect_PartialLandmarks(t *testing.T) {
	detail := fullFace()
	detail.Landmarks = detail.Landmarks[:3]
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{detail}}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	faces, err := p.Detect(context.Background(), testFrame(), domain.DetectOptions{})

	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Nil(t, faces[0].Landmarks.LeftEye)
	assert.Nil(t, faces[0].Landmarks.Mouth)
}

func TestDetect_NoFaces(t *testing.T) {
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{}}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	faces, err := p.Detect(context.Background(), testFrame(), domain.DetectOptions{})

	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDetect_MultipleFaces(t *testing.T) {
	second := fullFace()
	second.BoundingBox.Left = ptr(float32(0.6))
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{fullFace(), second}}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	faces, err := p.Detect(context.Background(), testFrame(), domain.DetectOptions{})

	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.InDelta(t, 240, faces[1].Box.X, 0.01)
}

func TestDetect_Error(t *testing.T) {
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return nil, assert.AnError
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	faces, err := p.Detect(context.Background(), testFrame(), domain.DetectOptions{})

	require.Error(t, err)
	assert.Nil(t, faces)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDetect_InvalidImage(t *testing.T) {
	called := false
	mock := &mockRekognitionAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			called = true
			return &rekognition.DetectFacesOutput{}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	_, err := p.Detect(context.Background(), imaging.NewGray(2, 2, make([]uint8, 4)), domain.DetectOptions{})

	assert.ErrorIs(t, err, domain.ErrInvalidImage)
	assert.False(t, called)
}

func TestLoad(t *testing.T) {
	probes := 0
	mock := &mockRekognitionAPI{
		listCollectionsFunc: func(ctx context.Context, params *rekognition.ListCollectionsInput, optFns ...func(*rekognition.Options)) (*rekognition.ListCollectionsOutput, error) {
			probes++
			assert.Equal(t, int32(1), *params.MaxResults)
			return &rekognition.ListCollectionsOutput{}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	for _, name := range Models {
		require.NoError(t, p.Load(context.Background(), name))
	}
	assert.Equal(t, 1, probes)

	err := p.Load(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestLoad_RecognitionUnsupported(t *testing.T) {
	calls := 0
	mock := &mockRekognitionAPI{
		listCollectionsFunc: func(ctx context.Context, params *rekognition.ListCollectionsInput, optFns ...func(*rekognition.Options)) (*rekognition.ListCollectionsOutput, error) {
			calls++
			return &rekognition.ListCollectionsOutput{}, nil
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	err := p.Load(context.Background(), registry.ModelRecognition)
	assert.ErrorIs(t, err, ErrNoDescriptors)
	assert.Equal(t, 0, calls, "no reachability check for an unsupported model")
	assert.NotContains(t, Models, registry.ModelRecognition)

	// The default set includes recognition, so a registry loading it against
	// Rekognition never reports ready.
	var failed []string
	for _, name := range registry.DefaultModels {
		if err := p.Load(context.Background(), name); err != nil {
			failed = append(failed, name)
		}
	}
	assert.Equal(t, []string{registry.ModelRecognition}, failed)
}

func TestLoad_AccessDenied(t *testing.T) {
	probes := 0
	mock := &mockRekognitionAPI{
		listCollectionsFunc: func(ctx context.Context, params *rekognition.ListCollectionsInput, optFns ...func(*rekognition.Options)) (*rekognition.ListCollectionsOutput, error) {
			probes++
			return nil, &smithy.GenericAPIError{Code: errCodeAccessDenied}
		},
	}
	p := NewProviderWithAPI(mock, testLogger())

	err := p.Load(context.Background(), registry.ModelDetector)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = p.Load(context.Background(), registry.ModelDetector)
	assert.Error(t, err)
	assert.Equal(t, 2, probes)
}

// skipIfNoAWSCredentials skips the test if AWS credentials are not configured
func skipIfNoAWSCredentials(t *testing.T) {
	t.Helper()

	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		t.Skip("Skipping integration test: AWS_ACCESS_KEY_ID not set")
	}
}

func TestIntegration_Load(t *testing.T) {
	skipIfNoAWSCredentials(t)

	p, err := NewProvider(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, p.Load(context.Background(), registry.ModelDetector))
}

func TestIntegration_DetectBlankFrame(t *testing.T) {
	skipIfNoAWSCredentials(t)

	p, err := NewProvider(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)

	faces, err := p.Detect(context.Background(), testFrame(), domain.DetectOptions{})
	require.NoError(t, err)
	assert.Empty(t, faces)
}
