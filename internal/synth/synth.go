// Package synth issues text-to-speech requests. The live streaming
// connection is the preferred path (lower latency, audio arrives as
// inbound stream messages); when the service does not react within a
// bounded window the request falls back to a one-shot HTTP call. Both
// paths are modeled as ordered strategies in a resilience group so a dead
// path is skipped quickly on subsequent requests.
package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voxwire/voxwire/internal/resilience"
)

// DefaultStreamWait bounds how long the transport path waits for any
// service reaction before the HTTP fallback takes over.
const DefaultStreamWait = 3 * time.Second

// DefaultEmotion rides along every request that does not set one.
const DefaultEmotion = "neutral"

// ErrNoPath is returned when no synthesis path is configured.
var ErrNoPath = errors.New("synth: no synthesis path configured")

// Request is one synthesis request.
type Request struct {
	Text    string
	Emotion string
}

// Result is the outcome of a synthesis request.
type Result struct {
	// Streamed reports that the service accepted the request over the
	// live connection; the audio will arrive as inbound stream messages
	// and there is nothing to play here.
	Streamed bool

	// Audio is the synthesized payload when the HTTP fallback served the
	// request directly.
	Audio []byte
}

// StreamSender is the outbound half of the live connection.
// *transport.Stream satisfies it.
type StreamSender interface {
	SendJSON(ctx context.Context, v any) error
}

// path is one synthesis strategy in the fallback chain.
type path interface {
	request(ctx context.Context, req Request) (Result, error)
}

// Synthesizer runs the transport-first, HTTP-second synthesis chain.
type Synthesizer struct {
	group *resilience.FallbackGroup[path]
	ack   chan struct{}
}

// Option configures a Synthesizer.
type Option func(*options)

type options struct {
	sender     StreamSender
	streamWait time.Duration
	endpoint   string
	voiceID    string
	client     *http.Client
	breaker    resilience.CircuitBreakerConfig
}

// WithStream enables the transport path. wait bounds how long to watch
// for a service reaction; zero or negative takes [DefaultStreamWait].
func WithStream(sender StreamSender, wait time.Duration) Option {
	return func(o *options) {
		o.sender = sender
		o.streamWait = wait
	}
}

// WithEndpoint enables the HTTP fallback path against the given synthesis
// endpoint URL.
func WithEndpoint(endpoint, voiceID string, client *http.Client) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.voiceID = voiceID
		o.client = client
	}
}

// WithBreaker overrides the per-path circuit breaker tuning.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// New assembles the synthesis chain from the configured paths. At least
// one of [WithStream] and [WithEndpoint] must be given.
func New(opts ...Option) (*Synthesizer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Synthesizer{ack: make(chan struct{}, 1)}
	cfg := resilience.FallbackConfig{CircuitBreaker: o.breaker}
	add := func(name string, p path) {
		if s.group == nil {
			s.group = resilience.NewFallbackGroup(p, name, cfg)
			return
		}
		s.group.Add(name, p)
	}

	if o.sender != nil {
		wait := o.streamWait
		if wait <= 0 {
			wait = DefaultStreamWait
		}
		add("stream", &streamPath{sender: o.sender, wait: wait, ack: s.ack})
	}
	if o.endpoint != "" {
		client := o.client
		if client == nil {
			client = http.DefaultClient
		}
		add("http", &httpPath{endpoint: o.endpoint, voiceID: o.voiceID, client: client})
	}
	if s.group == nil {
		return nil, ErrNoPath
	}
	return s, nil
}

// Synthesize runs the chain for one request. An empty emotion is filled
// with [DefaultEmotion].
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	if req.Emotion == "" {
		req.Emotion = DefaultEmotion
	}
	res, err := resilience.ExecuteWithResult(s.group, func(p path) (Result, error) {
		return p.request(ctx, req)
	})
	if err != nil {
		return Result{}, fmt.Errorf("synth: %w", err)
	}
	return res, nil
}

// NotifyResponse signals that the service reacted to an in-flight
// transport request (a tts_processing status, inline audio, or an
// audio_url arrived on the stream). The session calls this from its
// message loop; extra notifications are dropped.
func (s *Synthesizer) NotifyResponse() {
	select {
	case s.ack <- struct{}{}:
	default:
	}
}
