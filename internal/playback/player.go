package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// WatchdogSlack is added to a clip's decoded duration to form the playback
// completion deadline. Some audio backends drop the natural completion
// signal; the watchdog guarantees Play always returns.
const WatchdogSlack = 500 * time.Millisecond

// DefaultMaxPlayback bounds playback of clips whose duration could not be
// determined (compressed containers passed through undecoded).
const DefaultMaxPlayback = 30 * time.Second

// ErrPlaybackTimeout is returned when the sink never signalled completion
// and the watchdog fired. The clip may still have played out fully.
var ErrPlaybackTimeout = errors.New("playback: completion signal never arrived")

// Sink is the audio output boundary. Start begins playback of the clip and
// returns a channel that closes when playback finishes naturally. Sinks
// must not block in Start.
type Sink interface {
	Start(clip Clip) (done <-chan struct{}, err error)
}

// Player decodes payloads and plays them through a Sink, guarding every
// request with a completion watchdog.
type Player struct {
	sink        Sink
	captureRate int
	maxPlayback time.Duration

	// onAudio fires the instant playback begins, before any waiting.
	onAudio func()
}

// Option configures a Player.
type Option func(*Player)

// WithOnAudio registers a callback invoked at the moment playback starts.
func WithOnAudio(fn func()) Option {
	return func(p *Player) { p.onAudio = fn }
}

// WithMaxPlayback overrides the watchdog bound for clips of unknown
// duration.
func WithMaxPlayback(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.maxPlayback = d
		}
	}
}

// NewPlayer creates a player writing to sink. captureRate is the session
// capture sample rate, used by the raw-PCM decode fallback.
func NewPlayer(sink Sink, captureRate int, opts ...Option) *Player {
	p := &Player{
		sink:        sink,
		captureRate: captureRate,
		maxPlayback: DefaultMaxPlayback,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play decodes the payload and blocks until playback completes, the
// watchdog fires, or ctx is cancelled. A decode failure is terminal for
// this request only; the caller reports it and the session continues.
func (p *Player) Play(ctx context.Context, payload []byte) error {
	clip, err := Decode(payload, p.captureRate)
	if err != nil {
		return err
	}

	deadline := p.maxPlayback
	if clip.Duration > 0 {
		deadline = clip.Duration + WatchdogSlack
	}

	done, err := p.sink.Start(clip)
	if err != nil {
		return fmt.Errorf("playback: start %s clip: %w", clip.Format, err)
	}
	if p.onAudio != nil {
		p.onAudio()
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		slog.Warn("playback watchdog fired",
			"format", clip.Format.String(),
			"duration", clip.Duration,
			"deadline", deadline)
		return ErrPlaybackTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
