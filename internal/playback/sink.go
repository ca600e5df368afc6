package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// closedDone is reused by sinks that complete instantly.
var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// DiscardSink swallows clips. It is the default sink for headless runs
// where the transcript is the output and the reply audio is noise.
type DiscardSink struct{}

// Start satisfies [Sink]; the clip is dropped and reported complete.
func (DiscardSink) Start(Clip) (<-chan struct{}, error) {
	return closedDone, nil
}

// DirSink writes each clip to a numbered file in a directory, with the
// extension matching the detected container.
type DirSink struct {
	dir string

	mu  sync.Mutex
	seq int
}

// NewDirSink creates the directory if needed and returns a sink writing
// into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("playback: create output dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Start writes the clip payload and reports completion immediately.
func (d *DirSink) Start(clip Clip) (<-chan struct{}, error) {
	d.mu.Lock()
	d.seq++
	name := fmt.Sprintf("reply-%04d%s", d.seq, extension(clip.Format))
	d.mu.Unlock()

	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, clip.Payload, 0o644); err != nil {
		return nil, fmt.Errorf("playback: write clip: %w", err)
	}
	return closedDone, nil
}

func extension(f Format) string {
	switch f {
	case FormatWAV:
		return ".wav"
	case FormatMP3:
		return ".mp3"
	case FormatOgg:
		return ".ogg"
	case FormatRawPCM:
		return ".pcm"
	default:
		return ".bin"
	}
}

var (
	_ Sink = DiscardSink{}
	_ Sink = (*DirSink)(nil)
)
