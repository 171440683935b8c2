package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ufirm/fingercounter/internal/capture"
	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/ui"
	"gocv.io/x/gocv"
)

func newCameraHarness(t *testing.T, cam capture.Camera) *harness {
	t.Helper()
	h := &harness{
		pub:     &chanPublisher{events: make(chan published, 256)},
		speaker: &fakeSpeaker{},
		det:     detector.NewMockDetector(),
	}
	a, err := New(Config{
		Detectors:    detector.MockFactory(h.det),
		Speaker:      h.speaker,
		Publisher:    h.pub,
		PollInterval: 5 * time.Millisecond,
		Camera:       cam,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	h.app = a
	return h
}

func TestApp_StartCamera_NoCamera(t *testing.T) {
	h := newHarness(t)
	if err := h.app.StartCamera(); !errors.Is(err, ErrNoCamera) {
		t.Errorf("StartCamera() = %v, want ErrNoCamera", err)
	}
}

func TestApp_LocalCameraPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.SetFPS(60)

	h := newCameraHarness(t, cam)
	h.det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})

	s := h.app.StartSession("")
	if err := h.app.StartCamera(); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	if !h.app.CameraRunning() || h.app.LocalProcessor() == nil {
		t.Fatal("camera pipeline should be running")
	}
	if err := h.app.StartCamera(); err != nil {
		t.Errorf("second StartCamera() should be a no-op, got %v", err)
	}

	ev := h.next(t, ui.EventPanel)
	if !strings.Contains(ev.HTML, "five") {
		t.Errorf("panel should show five: %s", ev.HTML)
	}
	if audio := h.next(t, ui.EventAudio); audio.HTML != "<audio>five</audio>" {
		t.Errorf("audio = %q", audio.HTML)
	}

	// Sessions started while the camera runs attach immediately.
	late := h.app.StartSession("")
	if late.Source() == nil {
		t.Error("late session should be fed by the local camera")
	}

	if err := h.app.StopCamera(); err != nil {
		t.Fatalf("StopCamera() error = %v", err)
	}
	if h.app.CameraRunning() || cam.IsOpen() {
		t.Error("camera should be closed")
	}
	if !h.det.Closed() {
		t.Error("local detector should be closed")
	}
	if s.State().CameraActive || late.State().CameraActive {
		t.Error("camera-fed sessions should return to idle")
	}
	h.next(t, ui.EventState)
}

func TestApp_LocalCameraDetectorError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.SetFPS(60)

	h := newCameraHarness(t, cam)
	h.det.SetError(errors.New("sidecar exited"))

	if err := h.app.StartCamera(); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.app.CameraRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.app.CameraRunning() {
		t.Error("detector error should stop the local pipeline")
	}
}
