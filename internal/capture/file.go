package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

// FileSource replays a 16-bit PCM WAV file as a capture stream. Stereo
// input is downmixed and any sample rate is resampled to the target rate,
// so recorded material from arbitrary devices can drive a session.
type FileSource struct {
	samples    []float32
	sampleRate int
	realtime   bool

	closeOnce sync.Once
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// Realtime paces frame delivery at the capture rate instead of replaying
// as fast as the consumer reads.
func Realtime() FileOption {
	return func(f *FileSource) { f.realtime = true }
}

// NewFileSource loads path and prepares it for replay at sampleRate.
func NewFileSource(path string, sampleRate int, opts ...FileOption) (*FileSource, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %w", path, err)
	}

	pcm, info, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("capture: parse %s: %w", path, err)
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("capture: %s: unsupported bit depth %d", path, info.BitsPerSample)
	}
	switch info.Channels {
	case 1:
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("capture: %s: unsupported channel count %d", path, info.Channels)
	}
	if info.SampleRate != sampleRate {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, sampleRate)
	}

	f := &FileSource{
		samples:    audio.DecodePCM16(pcm),
		sampleRate: sampleRate,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start begins replay. The channel closes when the file is exhausted or
// ctx is cancelled.
func (f *FileSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	frames := make(chan audio.Frame)
	go f.run(ctx, frames)
	return frames, nil
}

func (f *FileSource) run(ctx context.Context, frames chan<- audio.Frame) {
	defer close(frames)

	size := frameSamples(f.sampleRate)
	var ticker *time.Ticker
	if f.realtime {
		ticker = time.NewTicker(DefaultFrameDuration)
		defer ticker.Stop()
	}

	var elapsed time.Duration
	for off := 0; off < len(f.samples); off += size {
		end := min(off+size, len(f.samples))
		frame := audio.Frame{
			Samples:    f.samples[off:end],
			SampleRate: f.sampleRate,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases nothing for a file source but satisfies [Source].
func (f *FileSource) Close() error {
	f.closeOnce.Do(func() { f.samples = nil })
	return nil
}

var _ Source = (*FileSource)(nil)
