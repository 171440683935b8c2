// Package rtc negotiates browser WebRTC sessions. Frames arrive as JPEG
// messages on the "frames" data channel and are answered with the annotated
// JPEG on the same channel, one message in flight at a time.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pion/webrtc/v4"
)

// FramesLabel is the data channel label the browser opens.
const FramesLabel = "frames"

// ErrClosed is reported by Err once a peer was closed locally.
var ErrClosed = errors.New("peer closed")

// FrameHandler turns one encoded frame into its annotated reply.
type FrameHandler interface {
	HandleFrame(data []byte) ([]byte, error)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(data []byte) ([]byte, error)

func (f FrameHandlerFunc) HandleFrame(data []byte) ([]byte, error) {
	return f(data)
}

// Negotiator answers browser offers.
type Negotiator struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *log.Logger
}

// NewNegotiator creates a Negotiator offering the given STUN servers.
func NewNegotiator(stunURLs []string) *Negotiator {
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}

	return &Negotiator{
		api:    webrtc.NewAPI(),
		config: cfg,
		logger: log.WithPrefix("rtc"),
	}
}

// ICEServers returns the servers handed to browsers.
func (n *Negotiator) ICEServers() []webrtc.ICEServer {
	return n.config.ICEServers
}

// Answer applies a remote offer and returns a Peer whose LocalDescription is
// the complete answer, ICE candidates included.
func (n *Negotiator) Answer(ctx context.Context, offer webrtc.SessionDescription, handler FrameHandler) (*Peer, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected offer, got %s", offer.Type)
	}

	pc, err := n.api.NewPeerConnection(n.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	p := &Peer{
		pc:      pc,
		handler: handler,
		done:    make(chan struct{}),
		logger:  n.logger,
	}
	pc.OnConnectionStateChange(p.onStateChange)
	pc.OnDataChannel(p.onDataChannel)

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	return p, nil
}

// Peer is one negotiated browser connection.
type Peer struct {
	pc      *webrtc.PeerConnection
	handler FrameHandler
	logger  *log.Logger

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// LocalDescription returns the answer to send back to the browser.
func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

// Done is closed when the connection fails, closes or a frame cannot be
// processed.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Err reports why the peer finished. It is nil while the peer is live.
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close tears down the connection.
func (p *Peer) Close() error {
	p.finish(ErrClosed)
	return p.pc.Close()
}

func (p *Peer) finish(err error) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *Peer) onStateChange(state webrtc.PeerConnectionState) {
	p.logger.Debug("connection state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateFailed:
		p.finish(errors.New("connection failed"))
		p.pc.Close()
	case webrtc.PeerConnectionStateClosed:
		p.finish(ErrClosed)
	}
}

func (p *Peer) onDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() != FramesLabel {
		p.logger.Warn("ignoring data channel", "label", dc.Label())
		return
	}

	dc.OnClose(func() {
		p.finish(ErrClosed)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}

		out, err := p.handler.HandleFrame(msg.Data)
		if err != nil {
			p.logger.Error("frame processing failed, closing stream", "err", err)
			p.finish(fmt.Errorf("process frame: %w", err))
			dc.Close()
			p.pc.Close()
			return
		}

		if err := dc.Send(out); err != nil {
			p.logger.Warn("send annotated frame", "err", err)
		}
	})
}
