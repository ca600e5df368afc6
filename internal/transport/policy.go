// Package transport owns the bidirectional streaming connection to the
// recognition/synthesis service: which frames are admitted for sending, how
// accepted frames are buffered and flushed, the inbound message protocol,
// and the transcript-silence endpointing timer.
package transport

import (
	"time"

	"github.com/voxwire/voxwire/internal/vad"
)

// SendPolicy decides frame admission. Each rule is evaluated in order and
// the first match wins; a frame admitted by no rule is dropped outright
// (audio is perishable — dropped frames are never buffered or retried).
type SendPolicy struct {
	// StrongSNR is the minimum SNR in dB for the unconditional
	// strong-speech rule.
	StrongSNR float64

	// LockedSNR is the minimum SNR in dB for sends gated by the speaker lock.
	LockedSNR float64

	// RecentWindow is how long after the last sent frame marginal frames
	// are still admitted, so short pauses and soft resumptions inside an
	// utterance are not clipped.
	RecentWindow time.Duration

	// LockedOverrideFactor scales the threshold for the loud-enough escape
	// hatch when a locked frame fails the fingerprint match.
	LockedOverrideFactor float64
}

// DefaultSendPolicy returns the tuned default admission policy.
func DefaultSendPolicy() SendPolicy {
	return SendPolicy{
		StrongSNR:            10,
		LockedSNR:            5,
		RecentWindow:         2 * time.Second,
		LockedOverrideFactor: 1.5,
	}
}

// ShouldSend reports whether a frame should be sent upstream.
// sinceLastSend is the time elapsed since the previous admitted frame (use
// a large value when nothing has been sent yet).
func (p SendPolicy) ShouldSend(dec vad.Decision, sinceLastSend time.Duration) bool {
	recent := sinceLastSend <= p.RecentWindow

	switch {
	// Confident speech well above the noise floor always goes out.
	case dec.Class.IsStrongSpeech && dec.SNR > p.StrongSNR:
		return true

	// An utterance in progress keeps flowing through soft stretches.
	case dec.SpeechActive && dec.Class.IsContinuousSpeech && recent:
		return true

	// Plain speech shortly after a send: pause/resume inside an utterance.
	case dec.Class.IsSpeech && recent:
		return true

	// Before a speaker lock exists, admit all speech so the lock can form.
	case dec.Class.IsSpeech && !dec.SpeakerLocked:
		return true

	// After locking, admit speech that matches the fingerprint — or is loud
	// enough to override it — provided the SNR is usable.
	case dec.SpeakerLocked && dec.Class.IsSpeech &&
		(dec.SpeakerMatch || dec.RMS > dec.Threshold*p.LockedOverrideFactor) &&
		dec.SNR > p.LockedSNR:
		return true

	default:
		return false
	}
}
