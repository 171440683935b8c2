// Package vision turns raw camera frames into annotated frames and finger counts.
package vision

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ufirm/fingercounter/internal/counter"
	"github.com/ufirm/fingercounter/internal/detector"
	"gocv.io/x/gocv"
)

// Overlay colours.
var (
	boneColor  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	jointColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Annotator mirrors a frame, runs hand detection on it and draws the
// detected skeletons. It keeps no state between frames.
type Annotator struct {
	detector detector.Detector
}

// NewAnnotator creates an Annotator using d for landmark detection.
func NewAnnotator(d detector.Detector) *Annotator {
	return &Annotator{detector: d}
}

// Annotate returns the mirrored, annotated copy of a BGR frame and the total
// number of raised fingers over all detected hands. The caller owns the
// returned Mat. Detector errors are wrapped and returned.
func (a *Annotator) Annotate(frame gocv.Mat) (gocv.Mat, int, error) {
	out := gocv.NewMat()
	gocv.Flip(frame, &out, 1)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(out, &rgb, gocv.ColorBGRToRGB)

	hands, err := a.detector.Detect(&rgb)
	if err != nil {
		out.Close()
		return gocv.NewMat(), 0, fmt.Errorf("detect hands: %w", err)
	}

	for _, hand := range hands {
		DrawHand(&out, hand)
	}

	return out, counter.Total(hands), nil
}

// DrawHand draws the skeleton of hand onto img. Landmarks are normalized so
// they are scaled by the image size.
func DrawHand(img *gocv.Mat, hand detector.HandLandmarks) {
	cols, rows := img.Cols(), img.Rows()
	toPixel := func(i int) image.Point {
		p := hand.Points[i]
		return image.Pt(int(p.X*float64(cols)), int(p.Y*float64(rows)))
	}

	for _, c := range detector.HandConnections {
		gocv.Line(img, toPixel(c.From), toPixel(c.To), boneColor, 2)
	}
	for i := 0; i < detector.NumLandmarks; i++ {
		gocv.Circle(img, toPixel(i), 4, jointColor, -1)
	}
}
