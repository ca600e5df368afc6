// Command voxwire streams a recording to a voice service through the
// adaptive speech pipeline and prints the transcripts it gets back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/internal/capture"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/playback"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/internal/transport"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voxwire.yaml", "path to the YAML configuration file")
	sayText := flag.String("say", "", "synthesize this text through the service after connecting")
	sttFile := flag.String("stt", "", "transcribe this audio file in one shot instead of streaming")
	flag.Parse()

	// Dynamic log level so the config watcher can adjust it at runtime.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		c := config.Diff(old, new)
		if c.LogLevelChanged {
			level.Set(c.NewLogLevel.Slog())
			slog.Info("log level changed", "level", c.NewLogLevel)
		}
		if c.DetectorChanged || c.StreamChanged || c.SynthesisChanged {
			slog.Info("pipeline tuning changed; applies to the next session")
		}
		if c.RequiresRestart {
			slog.Warn("structural configuration changed; restart to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxwire: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(cfg.Server.LogLevel.Slog())

	slog.Info("voxwire starting",
		"version", version,
		"config", *configPath,
		"service", cfg.Service.Root,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot mode: upload a recording for transcription and exit.
	if *sttFile != "" {
		return runSTT(ctx, cfg, *sttFile)
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltins(reg)

	source, err := reg.CreateSource(cfg.Capture)
	if err != nil {
		slog.Error("failed to build capture source", "err", err)
		return 1
	}
	sink, err := reg.CreateSink(cfg.Output)
	if err != nil {
		slog.Error("failed to build playback sink", "err", err)
		return 1
	}

	sess, err := session.New(source, sink, session.Config{
		ServiceRoot:    cfg.Service.Root,
		SampleRate:     cfg.Capture.SampleRate,
		VAD:            cfg.Detector.VAD(cfg.Capture.SampleRate),
		FlushFrames:    cfg.Stream.FlushFrames,
		FlushInterval:  cfg.Stream.FlushInterval(),
		SilenceTimeout: cfg.Stream.SilenceTimeout(),
		SynthEndpoint:  cfg.Synthesis.Endpoint,
		VoiceID:        cfg.Synthesis.VoiceID,
		StreamTTSWait:  cfg.Synthesis.StreamWait(),
	}, session.Callbacks{
		OnPartial: func(text string) { fmt.Printf("  … %s\n", text) },
		OnFinal:   func(text string) { fmt.Printf("you: %s\n", text) },
		OnStatus: func(state playback.AssistantState) {
			slog.Debug("assistant state", "state", state)
		},
		OnAudio: func() { slog.Debug("reply audio started") },
		OnError: func(err error) { slog.Warn("session error", "err", err) },
	}, session.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		srv := operationalServer(cfg, metrics)
		g.Go(func() error {
			slog.Info("operational server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("operational server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := sess.Start(gctx); err != nil {
			return err
		}
		slog.Info("session started", "id", sess.ID())

		if *sayText != "" {
			if err := sess.Speak(gctx, *sayText, ""); err != nil {
				slog.Warn("synthesis request failed", "err", err)
			}
		}

		select {
		case <-sess.Done():
		case <-gctx.Done():
		}
		sess.Stop()
		stop() // capture ended; wind the operational server down too
		return nil
	})

	runErr := g.Wait()
	printQuality(sess.QualityReport())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runSTT uploads one recording to the service's transcription endpoint and
// prints the result. It bypasses the streaming pipeline entirely.
func runSTT(ctx context.Context, cfg *config.Config, path string) int {
	payload, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read audio file", "path", path, "err", err)
		return 1
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	text, err := transport.UploadSTT(uploadCtx, nil, cfg.Service.Root, filepath.Base(path), payload)
	if err != nil {
		slog.Error("transcription failed", "err", err)
		return 1
	}
	fmt.Printf("you: %s\n", text)
	return 0
}

// registerBuiltins wires the capture sources and playback sinks that ship
// with voxwire into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterSource("file", func(c config.CaptureConfig) (capture.Source, error) {
		if c.Input == "" {
			return nil, errors.New("capture.input is required for the file source")
		}
		var opts []capture.FileOption
		if c.Realtime {
			opts = append(opts, capture.Realtime())
		}
		return capture.NewFileSource(c.Input, c.SampleRate, opts...)
	})

	// The synthetic source replays a short scripted utterance; it exists so
	// the full pipeline can be smoke-tested without a recording.
	reg.RegisterSource("synthetic", func(c config.CaptureConfig) (capture.Source, error) {
		return capture.NewSyntheticSource(c.SampleRate,
			capture.Segment{Duration: time.Second, Amplitude: 0.001, Pitch: 120},
			capture.Segment{Duration: 2 * time.Second, Amplitude: 0.08, Pitch: 160},
			capture.Segment{Duration: time.Second, Amplitude: 0.001, Pitch: 120},
		), nil
	})

	reg.RegisterSink("discard", func(config.OutputConfig) (playback.Sink, error) {
		return playback.DiscardSink{}, nil
	})
	reg.RegisterSink("dir", func(o config.OutputConfig) (playback.Sink, error) {
		return playback.NewDirSink(o.Dir)
	})
}

// operationalServer builds the local HTTP endpoint serving health probes
// and Prometheus metrics.
func operationalServer(cfg *config.Config, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	h := health.New(health.ServiceReachable(nil, transport.HTTPRoot(cfg.Service.Root)))
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printQuality(q session.QualityReport) {
	if q.ProcessedCount == 0 {
		return
	}
	fmt.Printf("session quality: snr=%.1fdB clarity=%.2f threshold=%.4f noise_floor=%.4f sent=%d/%d\n",
		q.SNR, q.Clarity, q.Threshold, q.NoiseFloor, q.SentCount, q.ProcessedCount)
}
