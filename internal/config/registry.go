package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxwire/voxwire/internal/capture"
	"github.com/voxwire/voxwire/internal/playback"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: not registered")

// Registry maps capture-source and playback-sink names to their
// constructor functions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]func(CaptureConfig) (capture.Source, error)
	sinks   map[string]func(OutputConfig) (playback.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]func(CaptureConfig) (capture.Source, error)),
		sinks:   make(map[string]func(OutputConfig) (playback.Sink, error)),
	}
}

// RegisterSource registers a capture source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(CaptureConfig) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterSink registers a playback sink factory under name.
func (r *Registry) RegisterSink(name string, factory func(OutputConfig) (playback.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSource instantiates the capture source named by cfg.Source.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSource(cfg CaptureConfig) (capture.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// CreateSink instantiates the playback sink named by cfg.Sink.
func (r *Registry) CreateSink(cfg OutputConfig) (playback.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Sink]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrNotRegistered, cfg.Sink)
	}
	return factory(cfg)
}
