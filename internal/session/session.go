// Package session orchestrates one voice conversation: it owns the
// capture source, the speech detector, the streaming transport, playback,
// and synthesis, and runs them from a single event loop. All adaptive
// state is scoped to the Session value — nothing survives between
// sessions, and tearing one down funnels every exit path through the same
// ordered shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxwire/voxwire/internal/capture"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/playback"
	"github.com/voxwire/voxwire/internal/synth"
	"github.com/voxwire/voxwire/internal/transport"
	"github.com/voxwire/voxwire/internal/vad"
	"github.com/voxwire/voxwire/pkg/audio"
)

// ErrAlreadyStarted is returned by Start on a session that already ran.
// Sessions are single-shot; start a new one instead.
var ErrAlreadyStarted = errors.New("session: already started")

// Callbacks is the caller-facing surface. Nil fields are skipped. All
// callbacks are invoked from the session event loop, so they must not
// block.
type Callbacks struct {
	// OnPartial delivers interim transcripts.
	OnPartial func(text string)

	// OnFinal delivers completed transcripts, whether the service marked
	// them final or the silence timer promoted the last partial.
	OnFinal func(text string)

	// OnStatus reports assistant state transitions.
	OnStatus func(state playback.AssistantState)

	// OnAudio fires the instant playback begins, for UI synchronisation.
	OnAudio func()

	// OnError reports session errors. Fatal errors are followed by a full
	// teardown to idle; recoverable ones (a single failed playback) are
	// not.
	OnError func(err error)
}

// Config holds everything tunable about a session. Zero fields take the
// package defaults, so an empty Config plus a ServiceRoot is enough.
type Config struct {
	// ServiceRoot is the WebSocket root of the voice service; the session
	// connects to {ServiceRoot}/{sessionID}.
	ServiceRoot string

	// SampleRate is the capture rate. Default 16000.
	SampleRate int

	// VAD tunes the speech detector.
	VAD vad.Config

	// Policy tunes frame admission. Zero value takes the default policy.
	Policy transport.SendPolicy

	// FlushFrames and FlushInterval tune outbound buffering.
	FlushFrames   int
	FlushInterval time.Duration

	// SilenceTimeout is the transcript-silence window promoting the last
	// partial to a final.
	SilenceTimeout time.Duration

	// SynthEndpoint enables the HTTP synthesis fallback; empty disables
	// it. StreamTTSWait bounds the transport-first attempt.
	SynthEndpoint string
	VoiceID       string
	StreamTTSWait time.Duration
}

// Session is one live voice conversation.
type Session struct {
	id  string
	cfg Config
	cbs Callbacks

	source   capture.Source
	detector *vad.Detector
	policy   transport.SendPolicy
	buffer   *transport.FlushBuffer
	final    *transport.Finalizer
	player   *playback.Player
	synth    *synth.Synthesizer
	stream   *transport.Stream
	metrics  *observe.Metrics
	httpc    *http.Client

	state    playback.AssistantState
	lastSend time.Time
	span     trace.Span

	quality quality

	started   bool
	startMu   sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	audioDone chan error
	fetched   chan []byte
	playing   bool
	audioQ    [][]byte
}

// Option configures a Session beyond Config.
type Option func(*Session)

// WithMetrics overrides the metrics instance (tests use a manual reader).
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithHTTPClient overrides the client used for audio_url fetches and the
// synthesis fallback.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpc = c }
}

// New assembles a session from a capture source and a playback sink.
// Nothing touches the network until Start.
func New(source capture.Source, sink playback.Sink, cfg Config, cbs Callbacks, opts ...Option) (*Session, error) {
	if cfg.ServiceRoot == "" {
		return nil, errors.New("session: ServiceRoot is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	vadCfg := cfg.VAD
	vadCfg.SampleRate = cfg.SampleRate
	if cfg.Policy == (transport.SendPolicy{}) {
		cfg.Policy = transport.DefaultSendPolicy()
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		cbs:       cbs,
		source:    source,
		detector:  vad.New(vadCfg),
		policy:    cfg.Policy,
		buffer:    transport.NewFlushBuffer(cfg.FlushFrames, cfg.FlushInterval),
		final:     transport.NewFinalizer(cfg.SilenceTimeout),
		metrics:   observe.DefaultMetrics(),
		httpc:     http.DefaultClient,
		done:      make(chan struct{}),
		audioDone: make(chan error, 1),
		fetched:   make(chan []byte, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.player = playback.NewPlayer(sink, cfg.SampleRate, playback.WithOnAudio(func() {
		if cbs.OnAudio != nil {
			cbs.OnAudio()
		}
	}))
	return s, nil
}

// ID returns the session identifier used in the transport address.
func (s *Session) ID() string { return s.id }

// QualityReport returns the current voice-quality snapshot. Safe to call
// from any goroutine, at any point in the session lifecycle.
func (s *Session) QualityReport() QualityReport {
	return s.quality.report()
}

// Done is closed when the event loop has exited and teardown completed.
// It never closes for a session that was never started.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start connects the transport, begins capture, and launches the event
// loop. The loop runs until the source ends, the connection drops, ctx is
// cancelled, or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	stream, err := transport.Dial(ctx, s.cfg.ServiceRoot, s.id)
	if err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	s.stream = stream

	frames, err := s.source.Start(ctx)
	if err != nil {
		stream.Close()
		return fmt.Errorf("session: start capture: %w", err)
	}

	var synthOpts []synth.Option
	synthOpts = append(synthOpts, synth.WithStream(stream, s.cfg.StreamTTSWait))
	if s.cfg.SynthEndpoint != "" {
		synthOpts = append(synthOpts, synth.WithEndpoint(s.cfg.SynthEndpoint, s.cfg.VoiceID, s.httpc))
	}
	s.synth, err = synth.New(synthOpts...)
	if err != nil {
		stream.Close()
		s.source.Close()
		return fmt.Errorf("session: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	s.lastSend = time.Now().Add(-24 * time.Hour)

	// The span covers the whole lifecycle; teardown ends it.
	_, s.span = observe.StartSpan(ctx, "voice.session",
		trace.WithAttributes(attribute.String("session.id", s.id)))

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.setState(playback.EventSessionStart)

	go s.run(loopCtx, ctx, frames)
	return nil
}

// Stop tears the session down: pending timers first, then the transport,
// then capture, then the adaptive state. Safe to call any number of
// times, including on a session that never started; every exit path runs
// the same sequence.
func (s *Session) Stop() {
	s.startMu.Lock()
	started := s.started
	s.startMu.Unlock()

	if !started {
		s.stopOnce.Do(s.teardown)
		return
	}
	s.cancel()
	<-s.done
}

// teardown is the single shutdown sequence. It runs exactly once, either
// from the event loop's exit or from Stop on a never-started session.
func (s *Session) teardown() {
	// Every exit path cancels loop-scoped work, so an in-flight playback
	// goroutine never outlives Done by its watchdog bound.
	if s.cancel != nil {
		s.cancel()
	}
	s.final.Cancel()
	if s.stream != nil {
		s.stream.Close()
	}
	s.source.Close()
	s.detector.Reset()

	if s.state != playback.StateIdle {
		s.setState(playback.EventStop)
	}
	if s.started {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if s.span != nil {
		s.span.End()
	}
}

// setState applies a state-machine event and notifies the caller on real
// transitions.
func (s *Session) setState(ev playback.Event) {
	next, ok := playback.Transition(s.state, ev)
	if !ok || next == s.state {
		return
	}
	s.state = next
	if s.cbs.OnStatus != nil {
		s.cbs.OnStatus(next)
	}
}

// serviceHTTPRoot is the HTTP origin of the voice service, used for
// audio_url fetches.
func (s *Session) serviceHTTPRoot() string {
	return transport.HTTPRoot(s.cfg.ServiceRoot)
}
