package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Cache errors. Callers match them with errors.Is.
var (
	ErrSynthesis = errors.New("speech synthesis failed")
	ErrCacheIO   = errors.New("speech cache I/O failed")
)

// Index records cache activity. It is optional and its failures never
// affect the audio returned to callers.
type Index interface {
	RecordSynthesis(word, lang, tld, path string, size int64) error
	RecordHit(word, lang, tld, path string, size int64) error
}

// Config holds configuration for the speech cache.
type Config struct {
	Dir     string        `mapstructure:"cache_dir"`
	Lang    string        `mapstructure:"lang"`
	TLD     string        `mapstructure:"tld"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the cache configuration used by the app.
func DefaultConfig() Config {
	return Config{
		Dir:     "audio_cache",
		Lang:    "en",
		TLD:     "com",
		Timeout: 10 * time.Second,
	}
}

// Cache returns MP3 audio for words, synthesizing each distinct word once
// and keeping it on disk as <word>_<lang>.mp3. Entries are never evicted.
type Cache struct {
	dir     string
	lang    string
	tld     string
	timeout time.Duration
	synth   Synthesizer
	index   Index
	mu      sync.Mutex
	logger  *log.Logger
}

// NewCache creates the cache directory if missing and returns a Cache.
// index may be nil.
func NewCache(cfg Config, synth Synthesizer, index Index) (*Cache, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.Lang == "" {
		cfg.Lang = def.Lang
	}
	if cfg.TLD == "" {
		cfg.TLD = def.TLD
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &Cache{
		dir:     cfg.Dir,
		lang:    cfg.Lang,
		tld:     cfg.TLD,
		timeout: cfg.Timeout,
		synth:   synth,
		index:   index,
		logger:  log.WithPrefix("speech"),
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the deterministic cache file for word.
func (c *Cache) Path(word string) string {
	return filepath.Join(c.dir, fileSafe(word)+"_"+c.lang+".mp3")
}

// Audio returns the MP3 bytes for word, calling the synthesizer only when
// the cache file does not exist yet. There is no vocabulary check here.
func (c *Cache) Audio(ctx context.Context, word string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(word)

	info, err := os.Stat(path)
	switch {
	case err == nil:
		c.recordHit(word, path, info.Size())
	case errors.Is(err, os.ErrNotExist):
		if err := c.synthesize(ctx, word, path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: stat %s: %v", ErrCacheIO, path, err)
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCacheIO, path, err)
	}
	return audio, nil
}

// Encoded returns the cached audio for word base64-encoded for inline
// embedding.
func (c *Cache) Encoded(ctx context.Context, word string) (string, error) {
	audio, err := c.Audio(ctx, word)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

// Payload is Encoded with failures collapsed to an empty string, for
// callers that only care whether there is something to play.
func (c *Cache) Payload(ctx context.Context, word string) string {
	payload, err := c.Encoded(ctx, word)
	if err != nil {
		c.logger.Debug("no audio payload", "word", word, "err", err)
		return ""
	}
	return payload
}

// AudioTag returns an autoplaying <audio> element with the audio inlined as a
// data URI.
func (c *Cache) AudioTag(ctx context.Context, word string) (string, error) {
	payload, err := c.Encoded(ctx, word)
	if err != nil {
		return "", err
	}
	return `<audio autoplay="true" src="data:audio/mp3;base64,` + payload + `"></audio>`, nil
}

func (c *Cache) synthesize(ctx context.Context, word, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	audio, err := c.synth.Synthesize(ctx, Request{Text: word, Lang: c.lang, TLD: c.tld})
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSynthesis, word, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".speech-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrCacheIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrCacheIO, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrCacheIO, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename to %s: %v", ErrCacheIO, path, err)
	}

	c.logger.Info("synthesized speech",
		"word", word,
		"size", humanize.Bytes(uint64(len(audio))),
		"took", time.Since(start).Round(time.Millisecond))

	if c.index != nil {
		if err := c.index.RecordSynthesis(word, c.lang, c.tld, path, int64(len(audio))); err != nil {
			c.logger.Warn("index speech entry", "word", word, "err", err)
		}
	}

	return nil
}

func (c *Cache) recordHit(word, path string, size int64) {
	if c.index == nil {
		return
	}
	if err := c.index.RecordHit(word, c.lang, c.tld, path, size); err != nil {
		c.logger.Warn("index speech hit", "word", word, "err", err)
	}
}

// fileSafe keeps letters, digits and '-' and replaces everything else with
// '_' so a word can never escape the cache directory.
func fileSafe(word string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, word)
}
