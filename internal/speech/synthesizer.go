package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// maxAudioSize caps the response body accepted from a synthesizer.
const maxAudioSize = 10 * 1024 * 1024

// ErrEmptyAudio is returned when a synthesizer produced no bytes.
var ErrEmptyAudio = errors.New("synthesizer returned no audio")

// Request describes one synthesis call.
type Request struct {
	Text string
	Lang string // e.g. "en"
	TLD  string // regional variant of the service, e.g. "com"
}

// Synthesizer converts text to MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, req Request) ([]byte, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// GoogleConfig holds configuration for GoogleSynthesizer.
type GoogleConfig struct {
	// BaseURL overrides the endpoint. When empty it is derived from the
	// request TLD: https://translate.google.<tld>/translate_tts.
	BaseURL string

	// RequestsPerMinute bounds outbound calls (defaults to 50).
	RequestsPerMinute int

	// Client is the HTTP client to use (defaults to one with a 15s timeout).
	Client *http.Client
}

// GoogleSynthesizer calls the Google Translate text-to-speech endpoint,
// the same service gTTS uses. No API key is required.
type GoogleSynthesizer struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGoogleSynthesizer creates a GoogleSynthesizer.
func NewGoogleSynthesizer(cfg GoogleConfig) *GoogleSynthesizer {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}

	return &GoogleSynthesizer{
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}
}

// Synthesize fetches MP3 audio for req.Text.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	endpoint := g.baseURL
	if endpoint == "" {
		endpoint = "https://translate.google." + req.TLD + "/translate_tts"
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", req.Lang)
	q.Set("q", req.Text)
	q.Set("total", "1")
	q.Set("idx", "0")
	q.Set("textlen", strconv.Itoa(len(req.Text)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) fingercounter")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech service returned HTTP %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	return audio, nil
}

// CommandSynthesizer shells out to gtts-cli and reads MP3 from its stdout.
type CommandSynthesizer struct {
	Binary  string
	Timeout time.Duration
}

// NewCommandSynthesizer creates a CommandSynthesizer for the given binary
// (defaults to gtts-cli).
func NewCommandSynthesizer(binary string) *CommandSynthesizer {
	if binary == "" {
		binary = "gtts-cli"
	}
	return &CommandSynthesizer{Binary: binary, Timeout: 30 * time.Second}
}

// Synthesize runs `gtts-cli <text> -l <lang> --tld <tld> -o -`.
func (c *CommandSynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := []string{req.Text, "-l", req.Lang}
	if req.TLD != "" {
		args = append(args, "--tld", req.TLD)
	}
	args = append(args, "-o", "-")

	cmd := exec.CommandContext(ctx, c.Binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timeout: %w", c.Binary, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", c.Binary, err, stderr.String())
	}

	if stdout.Len() == 0 {
		return nil, ErrEmptyAudio
	}

	return stdout.Bytes(), nil
}
