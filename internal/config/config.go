// Package config provides the configuration schema, loader, file watcher,
// and source registry for the voxwire client.
package config

import (
	"log/slog"
	"time"

	"github.com/voxwire/voxwire/internal/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unrecognised values map
// to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Service   ServiceConfig   `yaml:"service"`
	Capture   CaptureConfig   `yaml:"capture"`
	Detector  DetectorConfig  `yaml:"detector"`
	Stream    StreamConfig    `yaml:"stream"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Output    OutputConfig    `yaml:"output"`
}

// ServerConfig holds the local operational HTTP endpoint (health and
// metrics) and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the operational server listens on
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. May be changed at runtime through the
	// config watcher.
	LogLevel LogLevel `yaml:"log_level"`
}

// ServiceConfig names the remote voice service.
type ServiceConfig struct {
	// Root is the WebSocket root of the voice service; sessions connect
	// to {Root}/{sessionID}.
	Root string `yaml:"root" validate:"required"`
}

// CaptureConfig selects and tunes the audio source.
type CaptureConfig struct {
	// Source names a registered capture source ("file", "synthetic").
	Source string `yaml:"source" validate:"omitempty,oneof=file synthetic"`

	// Input is the recording path for the file source.
	Input string `yaml:"input"`

	// SampleRate is the pipeline rate. Default 16000.
	SampleRate int `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=48000"`

	// Realtime paces file replay at the capture rate instead of replaying
	// as fast as the pipeline accepts frames.
	Realtime bool `yaml:"realtime"`
}

// DetectorConfig tunes the adaptive speech detector. Zero fields take the
// detector defaults.
type DetectorConfig struct {
	MinThreshold      float64 `yaml:"min_threshold" validate:"omitempty,gte=0,lte=1"`
	MaxThreshold      float64 `yaml:"max_threshold" validate:"omitempty,gte=0,lte=1"`
	TargetFactor      float64 `yaml:"target_factor" validate:"omitempty,gt=0"`
	LearningRate      float64 `yaml:"learning_rate" validate:"omitempty,gt=0,lte=1"`
	NoiseFloorSamples int     `yaml:"noise_floor_samples" validate:"omitempty,gte=10,lte=1000"`
	StrongFactor      float64 `yaml:"strong_factor" validate:"omitempty,gt=0"`
	ContinuousFactor  float64 `yaml:"continuous_factor" validate:"omitempty,gt=0"`
	HangoverFrames    int     `yaml:"hangover_frames" validate:"omitempty,gte=0,lte=100"`
	VolumeTolerance   float64 `yaml:"volume_tolerance" validate:"omitempty,gt=0"`
	PitchTolerance    float64 `yaml:"pitch_tolerance" validate:"omitempty,gt=0"`
	HighPassCutoff    float64 `yaml:"high_pass_cutoff" validate:"omitempty,gte=0,lte=1000"`
}

// VAD converts the detector section to the detector's own config type.
// The sample rate comes from the capture section.
func (d DetectorConfig) VAD(sampleRate int) vad.Config {
	return vad.Config{
		SampleRate:        sampleRate,
		MinThreshold:      d.MinThreshold,
		MaxThreshold:      d.MaxThreshold,
		TargetFactor:      d.TargetFactor,
		LearningRate:      d.LearningRate,
		NoiseFloorSamples: d.NoiseFloorSamples,
		StrongFactor:      d.StrongFactor,
		ContinuousFactor:  d.ContinuousFactor,
		HangoverFrames:    d.HangoverFrames,
		VolumeTolerance:   d.VolumeTolerance,
		PitchTolerance:    d.PitchTolerance,
		HighPassCutoff:    d.HighPassCutoff,
	}
}

// StreamConfig tunes outbound buffering and transcript finalization.
// Durations are expressed in milliseconds.
type StreamConfig struct {
	FlushFrames      int `yaml:"flush_frames" validate:"omitempty,gte=1,lte=100"`
	FlushIntervalMs  int `yaml:"flush_interval_ms" validate:"omitempty,gte=10,lte=10000"`
	SilenceTimeoutMs int `yaml:"silence_timeout_ms" validate:"omitempty,gte=100,lte=60000"`
}

// FlushInterval returns the outbound flush interval, zero when unset.
func (s StreamConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

// SilenceTimeout returns the transcript silence window, zero when unset.
func (s StreamConfig) SilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMs) * time.Millisecond
}

// SynthesisConfig tunes the speech synthesis chain.
type SynthesisConfig struct {
	// Endpoint is the HTTP synthesis fallback; empty disables it.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// VoiceID selects the service voice, when the endpoint supports it.
	VoiceID string `yaml:"voice_id"`

	// StreamWaitMs bounds the transport-first synthesis attempt.
	StreamWaitMs int `yaml:"stream_wait_ms" validate:"omitempty,gte=100,lte=30000"`
}

// StreamWait returns the transport-first wait, zero when unset.
func (s SynthesisConfig) StreamWait() time.Duration {
	return time.Duration(s.StreamWaitMs) * time.Millisecond
}

// OutputConfig selects where decoded replies go.
type OutputConfig struct {
	// Sink names a registered playback sink ("discard", "dir").
	Sink string `yaml:"sink" validate:"omitempty,oneof=discard dir"`

	// Dir receives one file per reply clip for the dir sink.
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when a field is absent from the
// loaded file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			LogLevel:   LogInfo,
		},
		Capture: CaptureConfig{
			Source:     "file",
			SampleRate: 16000,
		},
		Output: OutputConfig{
			Sink: "discard",
		},
	}
}
