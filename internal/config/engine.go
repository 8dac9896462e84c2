package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/saturnino-fabrica-de-software/presenca/internal/antispoof"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/liveness"
	"github.com/saturnino-fabrica-de-software/presenca/internal/quality"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

// Engine tunes detection, scoring and resource limits. Environment keys are
// prefixed with ENGINE_, file keys use the mapstructure names.
type Engine struct {
	// Detection
	MinConfidence     float64 `envconfig:"MIN_CONFIDENCE" default:"0.5" mapstructure:"min_confidence"`
	DistanceThreshold float64 `envconfig:"DISTANCE_THRESHOLD" default:"0.6" mapstructure:"distance_threshold"`
	ScoreThreshold    float64 `envconfig:"SCORE_THRESHOLD" default:"0.8" mapstructure:"score_threshold"`
	IoUThreshold      float64 `envconfig:"IOU_THRESHOLD" default:"0.3" mapstructure:"iou_threshold"`
	DistanceMetric    string  `envconfig:"DISTANCE_METRIC" default:"cosine" mapstructure:"distance_metric"`

	// Liveness
	MinLivenessScore          float64       `envconfig:"MIN_LIVENESS_SCORE" default:"0.7" mapstructure:"min_liveness_score"`
	EyeAspectRatioThreshold   float64       `envconfig:"EYE_ASPECT_RATIO_THRESHOLD" default:"0.2" mapstructure:"eye_aspect_ratio_threshold"`
	BlinkFrameThreshold       int           `envconfig:"BLINK_FRAME_THRESHOLD" default:"2" mapstructure:"blink_frame_threshold"`
	ExpressionChangeThreshold float64       `envconfig:"EXPRESSION_CHANGE_THRESHOLD" default:"0.05" mapstructure:"expression_change_threshold"`
	HeadPoseThreshold         float64       `envconfig:"HEAD_POSE_THRESHOLD" default:"30" mapstructure:"head_pose_threshold"`
	TimeWindow                time.Duration `envconfig:"TIME_WINDOW" default:"5s" mapstructure:"time_window"`

	// Quality
	MinQualityScore float64 `envconfig:"MIN_QUALITY_SCORE" default:"0.6" mapstructure:"min_quality_score"`
	MinResolution   int     `envconfig:"MIN_RESOLUTION" default:"100" mapstructure:"min_resolution"`
	MaxBlur         float64 `envconfig:"MAX_BLUR" default:"12" mapstructure:"max_blur"`
	MinBrightness   float64 `envconfig:"MIN_BRIGHTNESS" default:"0.2" mapstructure:"min_brightness"`
	MaxBrightness   float64 `envconfig:"MAX_BRIGHTNESS" default:"0.85" mapstructure:"max_brightness"`
	MaxPoseAngle    float64 `envconfig:"MAX_POSE_ANGLE" default:"30" mapstructure:"max_pose_angle"`
	MinEyeDistance  float64 `envconfig:"MIN_EYE_DISTANCE" default:"20" mapstructure:"min_eye_distance"`

	// Anti-spoofing
	TextureAnalysis   bool    `envconfig:"TEXTURE_ANALYSIS" default:"true" mapstructure:"texture_analysis"`
	MotionAnalysis    bool    `envconfig:"MOTION_ANALYSIS" default:"false" mapstructure:"motion_analysis"`
	DepthAnalysis     bool    `envconfig:"DEPTH_ANALYSIS" default:"false" mapstructure:"depth_analysis"`
	MinAntiSpoofScore float64 `envconfig:"MIN_ANTI_SPOOF_SCORE" default:"0.5" mapstructure:"min_anti_spoof_score"`
	MotionBlockSize   int     `envconfig:"MOTION_BLOCK_SIZE" default:"8" mapstructure:"motion_block_size"`
	DepthRelief       float64 `envconfig:"DEPTH_RELIEF" default:"15" mapstructure:"depth_relief"`

	// Performance
	UseGPU                 bool `envconfig:"USE_GPU" default:"false" mapstructure:"use_gpu"`
	MaxConcurrentProcesses int  `envconfig:"MAX_CONCURRENT_PROCESSES" default:"4" mapstructure:"max_concurrent_processes"`

	// Retry and timeout
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" mapstructure:"max_retries"`
	RetryDelay      time.Duration `envconfig:"RETRY_DELAY" default:"1s" mapstructure:"retry_delay"`
	TimeoutDuration time.Duration `envconfig:"TIMEOUT" default:"30s" mapstructure:"timeout"`

	// Cache
	CacheEnabled bool          `envconfig:"CACHE_ENABLED" default:"true" mapstructure:"cache_enabled"`
	CacheMaxSize int           `envconfig:"CACHE_MAX_SIZE" default:"1000" mapstructure:"cache_max_size"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"1h" mapstructure:"cache_ttl"`
}

// DefaultEngine returns the values applied when no environment is set.
func DefaultEngine() Engine {
	q := quality.DefaultConfig()
	l := liveness.DefaultConfig()
	a := antispoof.DefaultConfig()

	return Engine{
		MinConfidence:     0.5,
		DistanceThreshold: 0.6,
		ScoreThreshold:    0.8,
		IoUThreshold:      0.3,
		DistanceMetric:    string(domain.MetricCosine),

		MinLivenessScore:          0.7,
		EyeAspectRatioThreshold:   l.EyeAspectRatioThreshold,
		BlinkFrameThreshold:       l.BlinkFrameThreshold,
		ExpressionChangeThreshold: l.ExpressionChangeThreshold,
		HeadPoseThreshold:         l.HeadPoseThreshold,
		TimeWindow:                5 * time.Second,

		MinQualityScore: 0.6,
		MinResolution:   q.MinResolution,
		MaxBlur:         q.MaxBlur,
		MinBrightness:   q.MinBrightness,
		MaxBrightness:   q.MaxBrightness,
		MaxPoseAngle:    30,
		MinEyeDistance:  20,

		TextureAnalysis:   a.TextureAnalysis,
		MotionAnalysis:    a.MotionAnalysis,
		DepthAnalysis:     a.DepthAnalysis,
		MinAntiSpoofScore: 0.5,
		MotionBlockSize:   a.MotionBlockSize,
		DepthRelief:       a.DepthRelief,

		MaxConcurrentProcesses: 4,

		MaxRetries:      3,
		RetryDelay:      time.Second,
		TimeoutDuration: 30 * time.Second,

		CacheEnabled: true,
		CacheMaxSize: 1000,
		CacheTTL:     time.Hour,
	}
}

// LoadEngineFile overlays a YAML, JSON or TOML tuning file on e. Keys absent
// from the file keep their current value.
func LoadEngineFile(path string, e *Engine) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read engine config %s: %w", path, err)
	}
	if err := v.Unmarshal(e); err != nil {
		return fmt.Errorf("decode engine config %s: %w", path, err)
	}
	return nil
}

func (e Engine) Quality() quality.Config {
	return quality.Config{
		MinBrightness: e.MinBrightness,
		MaxBrightness: e.MaxBrightness,
		MaxBlur:       e.MaxBlur,
		MinResolution: e.MinResolution,
	}
}

func (e Engine) Liveness() liveness.Config {
	return liveness.Config{
		EyeAspectRatioThreshold:   e.EyeAspectRatioThreshold,
		ExpressionChangeThreshold: e.ExpressionChangeThreshold,
		HeadPoseThreshold:         e.HeadPoseThreshold,
		BlinkFrameThreshold:       e.BlinkFrameThreshold,
	}
}

func (e Engine) AntiSpoof() antispoof.Config {
	return antispoof.Config{
		TextureAnalysis: e.TextureAnalysis,
		MotionAnalysis:  e.MotionAnalysis,
		DepthAnalysis:   e.DepthAnalysis,
		MotionBlockSize: e.MotionBlockSize,
		DepthRelief:     e.DepthRelief,
	}
}

func (e Engine) RetryPolicy() registry.Policy {
	return registry.Policy{
		MaxRetries: e.MaxRetries,
		RetryDelay: e.RetryDelay,
	}
}

func (e Engine) Metric() domain.DistanceMetric {
	return domain.DistanceMetric(e.DistanceMetric)
}

// Validate returns domain.ErrConfiguration describing the first bad value.
func (e Engine) Validate() error {
	unit := []struct {
		name  string
		value float64
	}{
		{"min_confidence", e.MinConfidence},
		{"score_threshold", e.ScoreThreshold},
		{"iou_threshold", e.IoUThreshold},
		{"min_liveness_score", e.MinLivenessScore},
		{"min_quality_score", e.MinQualityScore},
		{"min_anti_spoof_score", e.MinAntiSpoofScore},
	}
	for _, u := range unit {
		if u.value < 0 || u.value > 1 {
			return invalid("%s must be in [0, 1], got %v", u.name, u.value)
		}
	}

	switch {
	case e.DistanceThreshold <= 0:
		return invalid("distance_threshold must be positive, got %v", e.DistanceThreshold)
	case e.MaxPoseAngle <= 0:
		return invalid("max_pose_angle must be positive, got %v", e.MaxPoseAngle)
	case e.MinEyeDistance < 0:
		return invalid("min_eye_distance must not be negative, got %v", e.MinEyeDistance)
	case e.TimeWindow <= 0:
		return invalid("time_window must be positive, got %v", e.TimeWindow)
	case e.MaxConcurrentProcesses < 1:
		return invalid("max_concurrent_processes must be at least 1, got %d", e.MaxConcurrentProcesses)
	case e.MaxRetries < 0:
		return invalid("max_retries must not be negative, got %d", e.MaxRetries)
	case e.RetryDelay < 0:
		return invalid("retry_delay must not be negative, got %v", e.RetryDelay)
	case e.TimeoutDuration <= 0:
		return invalid("timeout must be positive, got %v", e.TimeoutDuration)
	case e.CacheEnabled && e.CacheMaxSize < 1:
		return invalid("cache_max_size must be at least 1, got %d", e.CacheMaxSize)
	case e.CacheEnabled && e.CacheTTL <= 0:
		return invalid("cache_ttl must be positive, got %v", e.CacheTTL)
	}

	switch e.Metric() {
	case domain.MetricCosine, domain.MetricL2:
	default:
		return invalid("distance_metric must be cosine or l2, got %q", e.DistanceMetric)
	}

	if err := e.Quality().Validate(); err != nil {
		return domain.ErrConfiguration.WithError(err)
	}
	if err := e.Liveness().Validate(); err != nil {
		return domain.ErrConfiguration.WithError(err)
	}
	return e.AntiSpoof().Validate()
}

func invalid(format string, args ...any) error {
	return domain.ErrConfiguration.WithError(fmt.Errorf(format, args...))
}
