package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSink is a Sink whose completion is driven by the test.
type fakeSink struct {
	started chan Clip
	done    chan struct{}
	err     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		started: make(chan Clip, 1),
		done:    make(chan struct{}),
	}
}

func (s *fakeSink) Start(clip Clip) (<-chan struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.started <- clip
	return s.done, nil
}

func TestPlayer_PlayResolvesOnCompletion(t *testing.T) {
	sink := newFakeSink()
	var audioFired bool
	p := NewPlayer(sink, 16000, WithOnAudio(func() { audioFired = true }))

	payload := buildTestWAV(t, 16000, 100*time.Millisecond)
	go func() {
		<-sink.started
		close(sink.done)
	}()

	if err := p.Play(context.Background(), payload); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !audioFired {
		t.Error("onAudio never fired")
	}
}

func TestPlayer_WatchdogFires(t *testing.T) {
	sink := newFakeSink()
	p := NewPlayer(sink, 16000)

	// A 10ms clip whose sink never signals: Play must return via the
	// watchdog at duration+slack, not hang.
	payload := buildTestWAV(t, 16000, 10*time.Millisecond)
	go func() { <-sink.started }()

	start := time.Now()
	err := p.Play(context.Background(), payload)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrPlaybackTimeout) {
		t.Fatalf("Play = %v, want ErrPlaybackTimeout", err)
	}
	if elapsed < 10*time.Millisecond+WatchdogSlack {
		t.Errorf("watchdog fired early, after %v", elapsed)
	}
	if elapsed > 10*time.Millisecond+WatchdogSlack+2*time.Second {
		t.Errorf("watchdog fired far too late, after %v", elapsed)
	}
}

func TestPlayer_UnknownDurationUsesMaxBound(t *testing.T) {
	sink := newFakeSink()
	p := NewPlayer(sink, 16000, WithMaxPlayback(30*time.Millisecond))

	// An Ogg pass-through clip has no decoded duration; the configured
	// maximum bounds the wait.
	payload := []byte("OggS\x00\x02compressed-page-data")
	go func() { <-sink.started }()

	err := p.Play(context.Background(), payload)
	if !errors.Is(err, ErrPlaybackTimeout) {
		t.Fatalf("Play = %v, want ErrPlaybackTimeout", err)
	}
}

func TestPlayer_DecodeFailureIsTerminalForRequest(t *testing.T) {
	sink := newFakeSink()
	p := NewPlayer(sink, 16000)

	err := p.Play(context.Background(), []byte{0x01})
	if !errors.Is(err, ErrUndecodable) {
		t.Fatalf("Play = %v, want ErrUndecodable", err)
	}
	select {
	case <-sink.started:
		t.Error("sink started despite decode failure")
	default:
	}
}

func TestPlayer_SinkStartError(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("device lost")
	var audioFired bool
	p := NewPlayer(sink, 16000, WithOnAudio(func() { audioFired = true }))

	payload := buildTestWAV(t, 16000, 10*time.Millisecond)
	if err := p.Play(context.Background(), payload); err == nil {
		t.Fatal("Play succeeded despite sink failure")
	}
	if audioFired {
		t.Error("onAudio fired despite sink failure")
	}
}

func TestPlayer_ContextCancellation(t *testing.T) {
	sink := newFakeSink()
	p := NewPlayer(sink, 16000)

	ctx, cancel := context.WithCancel(context.Background())
	payload := buildTestWAV(t, 16000, time.Second)
	go func() {
		<-sink.started
		cancel()
	}()

	err := p.Play(ctx, payload)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Play = %v, want context.Canceled", err)
	}
}
