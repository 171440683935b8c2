package main

import (
	"fmt"
	"net"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ufirm/fingercounter/internal/app"
	"github.com/ufirm/fingercounter/internal/capture"
	"github.com/ufirm/fingercounter/internal/config"
	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/rtc"
	"github.com/ufirm/fingercounter/internal/server"
	"github.com/ufirm/fingercounter/internal/speech"
	"github.com/ufirm/fingercounter/internal/store"
	"github.com/ufirm/fingercounter/internal/tray"
)

var withTray bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	printBanner()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.Watch(v, func(c config.Config) {
		log.SetLevel(c.Log.Level)
	})

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	cache, err := newCache(cfg, st)
	if err != nil {
		return err
	}

	hub := server.NewHub()
	appCfg := app.Config{
		Detectors:    detector.NewFactory(cfg.Detector),
		Speaker:      cache,
		Publisher:    hub,
		PollInterval: cfg.UI.PollInterval,
		SessionTTL:   cfg.UI.SessionTTL,
	}
	if cfg.Camera.Enabled {
		appCfg.Camera = capture.NewCamera(cfg.Camera)
	}
	application, err := app.New(appCfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if cfg.Camera.Enabled {
		if err := application.StartCamera(); err != nil {
			log.Warn("local camera unavailable", "device", cfg.Camera.Device, "err", err)
		}
	}

	srv := server.New(server.Config{
		App:        application,
		Hub:        hub,
		Negotiator: rtc.NewNegotiator(cfg.RTC.STUNURLs),
		Store:      st,
		LogoPath:   cfg.UI.LogoPath,
		CameraFPS:  cfg.Camera.FPS,
	})

	log.Info("starting server", "addr", cfg.Server.Addr, "cache", cache.Dir())

	if !withTray {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	}

	t := tray.New()
	t.SetActive(application.CameraRunning())
	t.OnToggle(func(active bool) error {
		var err error
		if active {
			err = application.StartCamera()
		} else {
			err = application.StopCamera()
		}
		if err != nil {
			log.Warn("toggle camera", "err", err)
		}
		return err
	})
	t.OnOpen(func() { openBrowser(pageURL(cfg.Server.Addr)) })
	t.OnQuit(stop)
	application.OnSpoken(func(_ int, word string) { t.SetLastSpoken(word) })

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr)
		t.Quit()
	}()

	// systray needs the main goroutine on macOS.
	t.Run()
	stop()
	return <-errCh
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Debug("speech index", "path", st.Path())
	return st, nil
}

func newCache(c config.Config, st *store.Store) (*speech.Cache, error) {
	var synth speech.Synthesizer
	switch c.Speech.Engine {
	case config.EngineGTTSCLI:
		cs := speech.NewCommandSynthesizer(c.Speech.Binary)
		if c.Speech.Timeout > 0 {
			cs.Timeout = c.Speech.Timeout
		}
		synth = cs
	default:
		synth = speech.NewGoogleSynthesizer(speech.GoogleConfig{
			RequestsPerMinute: c.Speech.RequestsPerMinute,
		})
	}

	var index speech.Index
	if st != nil {
		index = st.Speech()
	}
	return speech.NewCache(c.Speech.Config, synth, index)
}

func pageURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8501/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("open browser", "url", url, "err", err)
	}
}
