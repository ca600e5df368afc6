package session

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/voxwire/voxwire/internal/capture"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/playback"
	"github.com/voxwire/voxwire/pkg/audio"
)

// startVoiceServer runs an httptest server whose handler receives the
// accepted WebSocket connection.
func startVoiceServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, _ := newTestMetricsWithReader(t)
	return m
}

func newTestMetricsWithReader(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// histogramCount collects reader and returns the datapoint count for the
// named histogram instrument, or 0 when nothing was recorded yet.
func histogramCount(t *testing.T, reader *sdkmetric.ManualReader, name string) uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				continue
			}
			var total uint64
			for _, dp := range hist.DataPoints {
				total += dp.Count
			}
			return total
		}
	}
	return 0
}

// idleSource emits no frames; the channel stays open until ctx ends. It
// keeps a session alive while tests drive it from the service side.
type idleSource struct{}

func (idleSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	frames := make(chan audio.Frame)
	go func() {
		<-ctx.Done()
		close(frames)
	}()
	return frames, nil
}

func (idleSource) Close() error { return nil }

// pacedSource throttles an inner source so the outbound write loop gets
// scheduled between frames, like a real capture device would allow.
type pacedSource struct {
	inner capture.Source
	delay time.Duration
}

func (p *pacedSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	in, err := p.inner.Start(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan audio.Frame)
	go func() {
		defer close(out)
		for frame := range in {
			time.Sleep(p.delay)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *pacedSource) Close() error { return p.inner.Close() }

// holdSource forwards an inner source's frames, then keeps the channel
// open until ctx ends instead of closing it — a capture device that keeps
// running after the scripted material is exhausted.
type holdSource struct {
	inner capture.Source
}

func (h *holdSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	in, err := h.inner.Start(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan audio.Frame)
	go func() {
		defer close(out)
		for frame := range in {
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

func (h *holdSource) Close() error { return h.inner.Close() }

// fakeSink completes every clip instantly and remembers what it played.
type fakeSink struct {
	started atomic.Int64
}

func (f *fakeSink) Start(clip playback.Clip) (<-chan struct{}, error) {
	f.started.Add(1)
	done := make(chan struct{})
	close(done)
	return done, nil
}

// hangSink never signals completion, standing in for an audio backend that
// dropped its completion callback.
type hangSink struct{}

func (hangSink) Start(playback.Clip) (<-chan struct{}, error) {
	return make(chan struct{}), nil
}

func TestNew_RequiresServiceRoot(t *testing.T) {
	_, err := New(idleSource{}, &fakeSink{}, Config{}, Callbacks{})
	if err == nil {
		t.Fatal("New accepted an empty ServiceRoot")
	}
}

// TestSession_AdaptiveAdmission replays a scripted capture — quiet noise,
// then a loud voiced burst — and checks that the adaptive pipeline settles
// on the noise, admits exactly the speech frames, and ships them upstream.
func TestSession_AdaptiveAdmission(t *testing.T) {
	var audioBytes atomic.Int64
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				audioBytes.Add(int64(len(data)))
			}
		}
	})

	source := &pacedSource{
		inner: capture.NewSyntheticSource(16000,
			capture.Segment{Duration: 400 * time.Millisecond, Amplitude: 0.0005 * math.Sqrt2, Pitch: 150},
			capture.Segment{Duration: 200 * time.Millisecond, Amplitude: 0.05 * math.Sqrt2, Pitch: 150},
		),
		delay: time.Millisecond,
	}

	// No partials arrive in this test, so the silence window never fires;
	// a short one just keeps the post-capture drain brief.
	sess, err := New(source, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		FlushFrames:    3,
		FlushInterval:  time.Second,
		SilenceTimeout: 200 * time.Millisecond,
	}, Callbacks{}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session never finished the scripted capture")
	}

	report := sess.QualityReport()
	if report.ProcessedCount != 30 {
		t.Errorf("ProcessedCount = %d, want 30", report.ProcessedCount)
	}
	if report.SentCount != 10 {
		t.Errorf("SentCount = %d, want 10 (the speech burst)", report.SentCount)
	}
	if report.NoiseFloor <= 0 || report.NoiseFloor > 0.005 {
		t.Errorf("NoiseFloor = %v, want converged near the quiet segment", report.NoiseFloor)
	}
	if report.Threshold < 0.01 {
		t.Errorf("Threshold = %v, below the clamp floor", report.Threshold)
	}
	if report.SNR <= 0 {
		t.Errorf("SNR = %v, want positive after the speech burst", report.SNR)
	}
	if report.Clarity <= 0 {
		t.Errorf("Clarity = %v, want positive after strong speech", report.Clarity)
	}

	// At least the full flushed payloads (3 frames each) must have
	// reached the service before teardown.
	deadline := time.Now().Add(time.Second)
	for audioBytes.Load() < 1920 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := audioBytes.Load(); got < 1920 {
		t.Errorf("service received %d audio bytes, want at least one full payload (1920)", got)
	}
}

// TestSession_FlushesUtteranceTail checks that buffered frames ship once
// admission stops: a short burst leaves fewer frames than the flush
// capacity in the buffer, and the trailing silent frames must push them
// out after the flush interval instead of holding them until capture ends.
func TestSession_FlushesUtteranceTail(t *testing.T) {
	var audioBytes atomic.Int64
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				audioBytes.Add(int64(len(data)))
			}
		}
	})

	// The capture keeps running after the script, so nothing below can be
	// attributed to an end-of-capture flush.
	source := &holdSource{inner: &pacedSource{
		inner: capture.NewSyntheticSource(16000,
			capture.Segment{Duration: 400 * time.Millisecond, Amplitude: 0.0005 * math.Sqrt2, Pitch: 150},
			capture.Segment{Duration: 200 * time.Millisecond, Amplitude: 0.05 * math.Sqrt2, Pitch: 150},
			capture.Segment{Duration: 2500 * time.Millisecond, Amplitude: 0.0005 * math.Sqrt2, Pitch: 150},
		),
		delay: 5 * time.Millisecond,
	}}

	sess, err := New(source, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		FlushFrames:    64, // never reached by the 10-frame burst
		FlushInterval:  350 * time.Millisecond,
		SilenceTimeout: 10 * time.Second,
	}, Callbacks{}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	// All 10 admitted frames (640 bytes each) must arrive while the
	// source is still live.
	deadline := time.Now().Add(3 * time.Second)
	for audioBytes.Load() < 6400 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := audioBytes.Load(); got < 6400 {
		t.Errorf("service received %d audio bytes, want the full burst (6400)", got)
	}
}

// TestSession_DrainsTranscriptsAfterCapture streams a short recording whose
// source then closes; the transcript the service sends back must still be
// promoted to a final before the session winds down.
func TestSession_DrainsTranscriptsAfterCapture(t *testing.T) {
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := context.Background()
		for {
			typ, _, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"partial","text":"hello"}`))
			}
		}
	})

	source := &pacedSource{
		inner: capture.NewSyntheticSource(16000,
			capture.Segment{Duration: 400 * time.Millisecond, Amplitude: 0.0005 * math.Sqrt2, Pitch: 150},
			capture.Segment{Duration: 200 * time.Millisecond, Amplitude: 0.05 * math.Sqrt2, Pitch: 150},
		),
		delay: time.Millisecond,
	}

	finals := make(chan string, 8)
	sess, err := New(source, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 150 * time.Millisecond,
	}, Callbacks{
		OnFinal: func(text string) { finals <- text },
	}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case got := <-finals:
		if got != "hello" {
			t.Errorf("final = %q, want %q", got, "hello")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("final never promoted after capture ended")
	}

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never wound down after the drain window")
	}
}

// TestSession_CancelsPlaybackOnExit covers the connection-lost path: a
// compressed clip of unknown duration is playing on a sink that never
// completes, and the session exits. Playback must be cut short with the
// session instead of running out its 30-second watchdog.
func TestSession_CancelsPlaybackOnExit(t *testing.T) {
	clip := append([]byte("ID3"), make([]byte, 64)...)
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageBinary, clip)
		time.Sleep(100 * time.Millisecond)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	metrics, reader := newTestMetricsWithReader(t)
	sess, err := New(idleSource{}, hangSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 10 * time.Second,
	}, Callbacks{}, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never noticed the closed connection")
	}

	// The playback goroutine records its duration on return; seeing the
	// datapoint promptly means the hung clip was cancelled, not left to
	// its watchdog.
	deadline := time.Now().Add(3 * time.Second)
	for histogramCount(t, reader, "voxwire.playback.duration") == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := histogramCount(t, reader, "voxwire.playback.duration"); got == 0 {
		t.Error("playback goroutine still running after session exit")
	}
}

// TestSession_LifecycleSpan checks that a session records one trace span
// spanning Start through teardown.
func TestSession_LifecycleSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := New(idleSource{}, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 10 * time.Second,
	}, Callbacks{}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Stop()

	var found bool
	for _, span := range exp.GetSpans() {
		if span.Name != "voice.session" {
			continue
		}
		found = true
		var hasID bool
		for _, attr := range span.Attributes {
			if attr == attribute.String("session.id", sess.ID()) {
				hasID = true
			}
		}
		if !hasID {
			t.Errorf("span attributes %v missing session.id=%s", span.Attributes, sess.ID())
		}
	}
	if !found {
		t.Fatal("no voice.session span recorded")
	}
}

// TestSession_SilencePromotesFinal drives the transcript side: two partials
// arrive, then nothing — the silence window must promote the last partial
// to the final, exactly once.
func TestSession_SilencePromotesFinal(t *testing.T) {
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"partial","text":"hel"}`))
		time.Sleep(60 * time.Millisecond)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"partial","text":"hello"}`))
		<-conn.CloseRead(ctx).Done()
	})

	partials := make(chan string, 8)
	finals := make(chan string, 8)
	sess, err := New(idleSource{}, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 150 * time.Millisecond,
	}, Callbacks{
		OnPartial: func(text string) { partials <- text },
		OnFinal:   func(text string) { finals <- text },
	}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	for _, want := range []string{"hel", "hello"} {
		select {
		case got := <-partials:
			if got != want {
				t.Fatalf("partial = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("partial %q never arrived", want)
		}
	}

	select {
	case got := <-finals:
		if got != "hello" {
			t.Errorf("final = %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("silence window never promoted the partial")
	}

	select {
	case got := <-finals:
		t.Errorf("unexpected second final %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

// TestSession_InboundAudioPlays checks the reply path: a binary WAV frame
// from the service must reach the sink, fire OnAudio, and walk the
// assistant through speaking and back to listening.
func TestSession_InboundAudioPlays(t *testing.T) {
	pcm := audio.EncodePCM16(make([]float32, 1600)) // 100 ms at 16 kHz
	wav := audio.BuildWAV(pcm, 16000, 1)

	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageBinary, wav)
		<-conn.CloseRead(ctx).Done()
	})

	sink := &fakeSink{}
	audioFired := make(chan struct{}, 1)
	states := make(chan playback.AssistantState, 16)
	sess, err := New(idleSource{}, sink, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 10 * time.Second,
	}, Callbacks{
		OnAudio: func() {
			select {
			case audioFired <- struct{}{}:
			default:
			}
		},
		OnStatus: func(st playback.AssistantState) { states <- st },
	}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	select {
	case <-audioFired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnAudio never fired for inbound audio")
	}

	waitState := func(want playback.AssistantState) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case st := <-states:
				if st == want {
					return
				}
			case <-deadline:
				t.Fatalf("never reached state %v", want)
			}
		}
	}
	waitState(playback.StateSpeaking)
	waitState(playback.StateListening)

	if got := sink.started.Load(); got != 1 {
		t.Errorf("sink started %d clips, want 1", got)
	}
}

// TestSession_Speak_StreamPath exercises transport-first synthesis: the
// service acknowledges the tts_request shape with a processing status and
// Speak returns without touching the HTTP fallback.
func TestSession_Speak_StreamPath(t *testing.T) {
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := context.Background()
		for {
			typ, _, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"tts_processing"}`))
			}
		}
	})

	sess, err := New(idleSource{}, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 10 * time.Second,
		StreamTTSWait:  time.Second,
	}, Callbacks{}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if err := sess.Speak(ctx, "hello there", ""); err != nil {
		t.Fatalf("Speak: %v", err)
	}
}

func TestSession_StartTwice(t *testing.T) {
	srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := New(idleSource{}, &fakeSink{}, Config{
		ServiceRoot:    wsURL(srv),
		SilenceTimeout: 10 * time.Second,
	}, Callbacks{}, WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if err := sess.Start(ctx); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

// TestSession_StopIdempotent covers both halves of the shutdown contract:
// stopping a never-started session is a no-op that still resets state, and
// stopping a live session twice is safe.
func TestSession_StopIdempotent(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		sess, err := New(idleSource{}, &fakeSink{}, Config{
			ServiceRoot: "ws://localhost:1",
		}, Callbacks{}, WithMetrics(newTestMetrics(t)))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		sess.Stop()
		sess.Stop()
		if got := sess.QualityReport(); got != (QualityReport{}) {
			t.Errorf("report after stop = %+v, want zero", got)
		}
	})

	t.Run("started", func(t *testing.T) {
		srv := startVoiceServer(t, func(conn *websocket.Conn, r *http.Request) {
			<-conn.CloseRead(context.Background()).Done()
		})
		sess, err := New(idleSource{}, &fakeSink{}, Config{
			ServiceRoot:    wsURL(srv),
			SilenceTimeout: 10 * time.Second,
		}, Callbacks{}, WithMetrics(newTestMetrics(t)))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
		sess.Stop()
		sess.Stop()

		select {
		case <-sess.Done():
		default:
			t.Error("Done not closed after Stop")
		}
	})
}
