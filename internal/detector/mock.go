package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// MockFactory returns a Factory that always hands out m.
func MockFactory(m *MockDetector) Factory {
	return func() (Detector, error) {
		return m, nil
	}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock as closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OpenPalmLandmarks returns a right hand with all five fingers raised.
// The thumb tip sits left of the thumb IP joint in the mirrored image.
func OpenPalmLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: HandRight,
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended to the side
	landmarks.Points[ThumbCMC] = Point3D{X: 0.45, Y: 0.75, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.38, Y: 0.70, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.32, Y: 0.65, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.27, Y: 0.60, Z: 0.03}

	// Index finger extended upward
	landmarks.Points[IndexMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	// Middle finger extended upward (slightly longer)
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}

	// Ring finger extended upward
	landmarks.Points[RingMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[RingPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	landmarks.Points[RingDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	landmarks.Points[RingTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	// Pinky finger extended upward
	landmarks.Points[PinkyMCP] = Point3D{X: 0.60, Y: 0.70, Z: 0.0}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.63, Y: 0.60, Z: 0.0}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.65, Y: 0.50, Z: 0.0}
	landmarks.Points[PinkyTip] = Point3D{X: 0.66, Y: 0.42, Z: 0.0}

	return landmarks
}

// FistLandmarks returns a right hand with every finger curled.
func FistLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: HandRight,
		Score:      0.93,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb folded across the palm
	landmarks.Points[ThumbCMC] = Point3D{X: 0.45, Y: 0.76, Z: 0.0}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.42, Y: 0.72, Z: -0.01}
	landmarks.Points[ThumbIP] = Point3D{X: 0.44, Y: 0.68, Z: -0.02}
	landmarks.Points[ThumbTip] = Point3D{X: 0.48, Y: 0.67, Z: -0.03}

	// Fingers curled: tips drop back below the PIP joints
	landmarks.Points[IndexMCP] = Point3D{X: 0.45, Y: 0.68, Z: -0.02}
	landmarks.Points[IndexPIP] = Point3D{X: 0.45, Y: 0.62, Z: -0.05}
	landmarks.Points[IndexDIP] = Point3D{X: 0.46, Y: 0.66, Z: -0.04}
	landmarks.Points[IndexTip] = Point3D{X: 0.46, Y: 0.69, Z: -0.02}

	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.67, Z: -0.02}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.61, Z: -0.05}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.65, Z: -0.04}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}

	landmarks.Points[RingMCP] = Point3D{X: 0.55, Y: 0.68, Z: -0.02}
	landmarks.Points[RingPIP] = Point3D{X: 0.55, Y: 0.62, Z: -0.05}
	landmarks.Points[RingDIP] = Point3D{X: 0.54, Y: 0.66, Z: -0.04}
	landmarks.Points[RingTip] = Point3D{X: 0.54, Y: 0.69, Z: -0.02}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.60, Y: 0.70, Z: -0.02}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.60, Y: 0.65, Z: -0.05}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.59, Y: 0.68, Z: -0.04}
	landmarks.Points[PinkyTip] = Point3D{X: 0.59, Y: 0.71, Z: -0.02}

	return landmarks
}

// PointingLandmarks returns a right fist with only the index finger raised.
func PointingLandmarks() HandLandmarks {
	landmarks := FistLandmarks()
	landmarks.Points[IndexPIP] = Point3D{X: 0.44, Y: 0.55, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.44, Y: 0.45, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.44, Y: 0.36, Z: 0.0}
	return landmarks
}

// Mirror returns a copy of h reflected horizontally with the opposite
// handedness label, as the same hand seen by the other side of the camera.
func Mirror(h HandLandmarks) HandLandmarks {
	out := h
	for i := range out.Points {
		out.Points[i].X = 1 - out.Points[i].X
	}
	if h.Handedness == HandRight {
		out.Handedness = HandLeft
	} else {
		out.Handedness = HandRight
	}
	return out
}
