package vision

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ufirm/fingercounter/internal/detector"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is used when re-encoding annotated frames.
const DefaultJPEGQuality = 70

// ErrBadFrame is returned when an incoming frame cannot be decoded.
var ErrBadFrame = errors.New("frame could not be decoded")

// Processor handles the frames of one video stream. It publishes the most
// recent finger count for readers on other goroutines; only the latest value
// is kept.
type Processor struct {
	annotator *Annotator
	detector  detector.Detector
	quality   int

	latest atomic.Int64
	frames atomic.Int64

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}

	mu       sync.RWMutex
	lastJPEG []byte

	closeOnce sync.Once
}

// NewProcessor creates a Processor that owns d and closes it on Close.
// quality <= 0 selects DefaultJPEGQuality.
func NewProcessor(d detector.Detector, quality int) *Processor {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	p := &Processor{
		annotator: NewAnnotator(d),
		detector:  d,
		quality:   quality,
		subs:      make(map[chan struct{}]struct{}),
	}
	p.latest.Store(-1)
	return p
}

// HandleFrame decodes a JPEG frame, annotates it, publishes the count and
// returns the annotated frame as JPEG.
func (p *Processor) HandleFrame(data []byte) ([]byte, error) {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	defer frame.Close()

	if frame.Empty() {
		return nil, ErrBadFrame
	}

	out, _, err := p.HandleMat(frame)
	return out, err
}

// HandleMat annotates a BGR frame, publishes the count and returns the
// annotated frame as JPEG together with the count.
func (p *Processor) HandleMat(frame gocv.Mat) ([]byte, int, error) {
	annotated, count, err := p.annotator.Annotate(frame)
	if err != nil {
		return nil, 0, err
	}
	defer annotated.Close()

	p.publish(count)

	buf, err := gocv.IMEncodeWithParams(".jpg", annotated, []int{gocv.IMWriteJpegQuality, p.quality})
	if err != nil {
		return nil, count, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := append([]byte(nil), buf.GetBytes()...)

	p.mu.Lock()
	p.lastJPEG = jpeg
	p.mu.Unlock()

	return jpeg, count, nil
}

func (p *Processor) publish(count int) {
	p.latest.Store(int64(count))
	p.frames.Add(1)

	p.subMu.Lock()
	defer p.subMu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Latest returns the most recent count. ok is false until the first frame
// has been processed.
func (p *Processor) Latest() (count int, ok bool) {
	v := p.latest.Load()
	if v < 0 {
		return 0, false
	}
	return int(v), true
}

// Subscribe returns a channel that is signalled after each published count,
// and a func that ends the subscription. Every subscriber has its own
// channel. Signals coalesce: a reader that falls behind sees one pending
// signal, not one per frame.
func (p *Processor) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.subMu.Lock()
	p.subs[ch] = struct{}{}
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, ch)
			p.subMu.Unlock()
		})
	}
}

// Frames returns how many frames were processed.
func (p *Processor) Frames() int64 {
	return p.frames.Load()
}

// LastFrame returns the most recent annotated JPEG, or nil.
func (p *Processor) LastFrame() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastJPEG
}

// Close releases the detector.
func (p *Processor) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.detector.Close()
	})
	return err
}
