// Package config loads fingercounter settings from defaults, a YAML file,
// FINGERCOUNTER_* environment variables and hosting variables such as PORT.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/ufirm/fingercounter/internal/capture"
	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/speech"
)

// AppName names the config file, env prefix and user directories.
const AppName = "fingercounter"

// Speech engines.
const (
	EngineGoogle  = "google"
	EngineGTTSCLI = "gtts-cli"
)

// DefaultSTUNURL is the public STUN server offered to browsers.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Detector detector.Config `mapstructure:"detector"`
	Speech   SpeechConfig    `mapstructure:"speech"`
	UI       UIConfig        `mapstructure:"ui"`
	RTC      RTCConfig       `mapstructure:"rtc"`
	Store    StoreConfig     `mapstructure:"store"`
	Camera   capture.Config  `mapstructure:"camera"`
	Log      LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SpeechConfig extends the cache settings with synthesizer selection.
type SpeechConfig struct {
	speech.Config     `mapstructure:",squash"`
	Engine            string `mapstructure:"engine"`
	Binary            string `mapstructure:"binary"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

type UIConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	LogoPath     string        `mapstructure:"logo_path"`
}

type RTCConfig struct {
	STUNURLs []string `mapstructure:"stun_urls"`
}

type StoreConfig struct {
	// Path of the SQLite index. Empty disables the index.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level log.Level `mapstructure:"level"`
}

// HostEnv carries variables set by hosting platforms.
type HostEnv struct {
	Port string `env:"PORT"`
	Host string `env:"HOST"`
}

// New returns a viper instance with defaults, env binding and search paths
// registered. An explicit file overrides the search.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, dir := range ConfigDirs() {
		v.AddConfigPath(dir)
	}
	return v
}

// SetDefaults registers every key so env overrides and AllSettings see it.
func SetDefaults(v *viper.Viper) {
	det := detector.DefaultConfig()
	sp := speech.DefaultConfig()
	cam := capture.DefaultConfig()

	v.SetDefault("server.addr", ":8501")

	v.SetDefault("detector.max_hands", det.MaxHands)
	v.SetDefault("detector.min_detection_confidence", det.MinConfidence)
	v.SetDefault("detector.min_tracking_confidence", det.MinTrackingConf)
	v.SetDefault("detector.script", det.Script)
	v.SetDefault("detector.python", det.Python)

	v.SetDefault("speech.engine", EngineGoogle)
	v.SetDefault("speech.binary", "gtts-cli")
	v.SetDefault("speech.lang", sp.Lang)
	v.SetDefault("speech.tld", sp.TLD)
	v.SetDefault("speech.cache_dir", sp.Dir)
	v.SetDefault("speech.requests_per_minute", 50)
	v.SetDefault("speech.timeout", sp.Timeout.String())

	v.SetDefault("ui.poll_interval", "100ms")
	v.SetDefault("ui.session_ttl", "30m")
	v.SetDefault("ui.logo_path", filepath.Join("Img", "Ufirm-fabicon.png"))

	v.SetDefault("rtc.stun_urls", []string{DefaultSTUNURL})

	v.SetDefault("store.path", DataPath(AppName+".db"))

	v.SetDefault("camera.enabled", cam.Enabled)
	v.SetDefault("camera.device", cam.Device)
	v.SetDefault("camera.width", cam.Width)
	v.SetDefault("camera.height", cam.Height)
	v.SetDefault("camera.fps", cam.FPS)

	v.SetDefault("log.level", "info")
}

// Load reads the config file if one is found, applies hosting variables and
// validates the result. A missing file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return Config{}, err
	}

	if err := ApplyHostEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode unmarshals the current viper state into a Config.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// DecodeHook converts durations, comma separated lists and log levels.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToLevelHookFunc(),
	)
}

func stringToLevelHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(log.Level(0)) {
			return data, nil
		}
		return log.ParseLevel(data.(string))
	}
}

// ApplyHostEnv lets PORT and HOST override server.addr.
func ApplyHostEnv(cfg *Config) error {
	hostEnv, err := env.ParseAs[HostEnv]()
	if err != nil {
		return fmt.Errorf("parse host env: %w", err)
	}
	if hostEnv.Port == "" && hostEnv.Host == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("server.addr %q: %w", cfg.Server.Addr, err)
	}
	if hostEnv.Host != "" {
		host = hostEnv.Host
	}
	if hostEnv.Port != "" {
		port = hostEnv.Port
	}
	cfg.Server.Addr = net.JoinHostPort(host, port)
	return nil
}

// Validate checks ranges the rest of the program relies on.
func (c Config) Validate() error {
	var errs []error

	if c.Detector.MaxHands < 1 {
		errs = append(errs, fmt.Errorf("detector.max_hands must be at least 1, got %d", c.Detector.MaxHands))
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_detection_confidence must be in [0,1], got %v", c.Detector.MinConfidence))
	}
	if c.Detector.MinTrackingConf < 0 || c.Detector.MinTrackingConf > 1 {
		errs = append(errs, fmt.Errorf("detector.min_tracking_confidence must be in [0,1], got %v", c.Detector.MinTrackingConf))
	}
	switch c.Speech.Engine {
	case EngineGoogle, EngineGTTSCLI:
	default:
		errs = append(errs, fmt.Errorf("speech.engine must be %q or %q, got %q", EngineGoogle, EngineGTTSCLI, c.Speech.Engine))
	}
	if strings.TrimSpace(c.Speech.Lang) == "" {
		errs = append(errs, errors.New("speech.lang is required"))
	}
	if strings.TrimSpace(c.Speech.Dir) == "" {
		errs = append(errs, errors.New("speech.cache_dir is required"))
	}
	if c.UI.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ui.poll_interval must be positive, got %s", c.UI.PollInterval))
	}

	return errors.Join(errs...)
}

// Watch reloads the config when the file changes and hands the new value to
// fn. Invalid edits are logged and ignored. It is a no-op without a file.
func Watch(v *viper.Viper, fn func(Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	logger := log.WithPrefix("config")
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "err", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		fn(cfg)
	})
	v.WatchConfig()
}

// ConfigDirs lists the user config directories searched for fingercounter.yaml.
func ConfigDirs() []string {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil
	}

	if c := os.Getenv("FINGERCOUNTER_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs
}

// DataPath returns the path of name inside the user data directory, falling
// back to the working directory.
func DataPath(name string) string {
	scope := gap.NewScope(gap.User, AppName)
	path, err := scope.DataPath(name)
	if err != nil {
		return name
	}
	return path
}
