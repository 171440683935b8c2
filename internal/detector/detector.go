package detector

import "gocv.io/x/gocv"

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes an RGB video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Factory creates a fresh Detector. Each video stream owns its own detector
// so tracking state never leaks between streams.
type Factory func() (Detector, error)

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int `mapstructure:"max_hands"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `mapstructure:"min_detection_confidence"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `mapstructure:"min_tracking_confidence"`

	// Script is the path to the landmark sidecar. Searched in well-known
	// locations when empty.
	Script string `mapstructure:"script"`

	// Python is the interpreter used to run Script. A virtual environment
	// interpreter is preferred when empty.
	Python string `mapstructure:"python"`
}

// DefaultConfig returns a Config with the finger counter's thresholds.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.7,
		MinTrackingConf: 0.7,
	}
}
