package capture

import (
	"context"
	"math"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

// Segment is one stretch of generated audio: a sine tone at the given
// pitch and amplitude, or silence when Amplitude is zero.
type Segment struct {
	Duration  time.Duration
	Amplitude float64
	Pitch     float64
}

// SyntheticSource generates audio from a script of segments. It exists
// for tests and offline experiments where no capture hardware or
// recording is available.
type SyntheticSource struct {
	segments   []Segment
	sampleRate int
}

// NewSyntheticSource builds a source replaying the given segments once.
func NewSyntheticSource(sampleRate int, segments ...Segment) *SyntheticSource {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &SyntheticSource{segments: segments, sampleRate: sampleRate}
}

// Start begins generation. The channel closes after the last segment.
func (s *SyntheticSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	frames := make(chan audio.Frame)
	go s.run(ctx, frames)
	return frames, nil
}

func (s *SyntheticSource) run(ctx context.Context, frames chan<- audio.Frame) {
	defer close(frames)

	size := frameSamples(s.sampleRate)
	var elapsed time.Duration
	for _, seg := range s.segments {
		total := int(float64(s.sampleRate) * seg.Duration.Seconds())
		for off := 0; off < total; off += size {
			n := min(size, total-off)
			samples := make([]float32, n)
			if seg.Amplitude > 0 && seg.Pitch > 0 {
				for i := range samples {
					phase := 2 * math.Pi * seg.Pitch * float64(off+i) / float64(s.sampleRate)
					samples[i] = float32(seg.Amplitude * math.Sin(phase))
				}
			}
			frame := audio.Frame{
				Samples:    samples,
				SampleRate: s.sampleRate,
				Timestamp:  elapsed,
			}
			elapsed += frame.Duration()

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close satisfies [Source].
func (s *SyntheticSource) Close() error { return nil }

var _ Source = (*SyntheticSource)(nil)
