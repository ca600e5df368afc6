// Package capture produces the microphone-side frame stream a session
// consumes. The real capture graph lives behind the platform audio layer
// and is outside this module's control; Source is the opaque boundary the
// design treats it as. The file source replays recorded audio and the
// synthetic source generates tones, which covers tests and offline use.
package capture

import (
	"context"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

// DefaultFrameDuration is the frame size sources emit. 20ms at 16kHz is
// 320 samples, matching the per-frame processing budget downstream.
const DefaultFrameDuration = 20 * time.Millisecond

// frameSamples returns the per-frame sample count for a rate.
func frameSamples(sampleRate int) int {
	return int(time.Duration(sampleRate) * DefaultFrameDuration / time.Second)
}

// Source is one capture device. Start begins frame delivery; the returned
// channel closes when the source is exhausted, fails, or ctx is
// cancelled. Frames carry monotonically increasing timestamps from the
// start of capture.
//
// Exactly one Start per Source; sources are not restartable.
type Source interface {
	Start(ctx context.Context) (<-chan audio.Frame, error)

	// Close releases the underlying device or file. Idempotent.
	Close() error
}
