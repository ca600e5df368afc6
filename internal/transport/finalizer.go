package transport

import "time"

// DefaultSilenceTimeout is the default transcript-silence window after
// which the most recent partial is promoted to a final result.
const DefaultSilenceTimeout = 2500 * time.Millisecond

// Finalizer implements transcript-driven endpointing. Energy-only
// endpointing is unreliable under network and ASR latency, so the end of an
// utterance is instead declared when no new partial transcript arrives for
// the silence timeout; the latest partial then becomes the final result.
//
// A real final transcript or a synthesized-audio payload from the service
// makes the pending timer moot — the caller must Cancel in both cases.
//
// Not safe for concurrent use; the session event loop is its only caller.
type Finalizer struct {
	timeout time.Duration
	timer   *time.Timer
	pending string
	armed   bool
}

// NewFinalizer creates a finalizer with the given silence timeout. Zero or
// negative takes [DefaultSilenceTimeout].
func NewFinalizer(timeout time.Duration) *Finalizer {
	if timeout <= 0 {
		timeout = DefaultSilenceTimeout
	}
	return &Finalizer{timeout: timeout}
}

// Timeout returns the configured silence window.
func (f *Finalizer) Timeout() time.Duration { return f.timeout }

// ObservePartial records a partial transcript and (re)arms the silence
// timer. Each new partial pushes the deadline out.
func (f *Finalizer) ObservePartial(text string) {
	f.pending = text
	f.armed = true
	if f.timer == nil {
		f.timer = time.NewTimer(f.timeout)
		return
	}
	if !f.timer.Stop() {
		select {
		case <-f.timer.C:
		default:
		}
	}
	f.timer.Reset(f.timeout)
}

// C returns the timer channel to select on. Returns nil (blocks forever in
// a select) when no partial is pending.
func (f *Finalizer) C() <-chan time.Time {
	if !f.armed || f.timer == nil {
		return nil
	}
	return f.timer.C
}

// Take returns the pending partial and disarms the finalizer. Call after
// the timer fires; reports false when nothing was pending.
func (f *Finalizer) Take() (string, bool) {
	if !f.armed {
		return "", false
	}
	text := f.pending
	f.pending = ""
	f.armed = false
	return text, true
}

// Cancel disarms the timer and discards the pending partial. Called when a
// real final transcript or synthesized audio arrives, and during teardown.
func (f *Finalizer) Cancel() {
	f.pending = ""
	f.armed = false
	if f.timer != nil && !f.timer.Stop() {
		select {
		case <-f.timer.C:
		default:
		}
	}
}
