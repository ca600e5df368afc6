package vad

import "math"

// SpeakerLock holds the one-shot volume/pitch fingerprint of the session's
// primary speaker. The profile is set exactly once — the first frame
// classified as strong speech with a detectable pitch wins — and is
// immutable until the session resets. Once locked, frame admission is
// biased toward frames matching the fingerprint, reducing interference from
// a second voice or background talk.
//
// One SpeakerLock per session; not safe for concurrent use.
type SpeakerLock struct {
	volumeTolerance float64
	pitchTolerance  float64

	volume float64
	pitch  float64
	locked bool
}

// NewSpeakerLock creates an unlocked speaker lock with the config's
// tolerance bands.
func NewSpeakerLock(cfg Config) *SpeakerLock {
	return &SpeakerLock{
		volumeTolerance: cfg.VolumeTolerance,
		pitchTolerance:  cfg.PitchTolerance,
	}
}

// TryLock fixes the speaker fingerprint from a strong-speech frame with a
// detected pitch. Subsequent calls are no-ops: first strong pitched frame
// wins, irreversibly within the session. Reports whether this call locked.
func (s *SpeakerLock) TryLock(rms, pitch float64) bool {
	if s.locked {
		return false
	}
	s.volume = rms
	s.pitch = pitch
	s.locked = true
	return true
}

// Locked reports whether a fingerprint has been fixed.
func (s *SpeakerLock) Locked() bool { return s.locked }

// Matches reports whether a frame's volume and pitch fall within the locked
// speaker's tolerance bands. Only meaningful once locked; returns false
// before a lock exists.
func (s *SpeakerLock) Matches(rms, pitch float64) bool {
	if !s.locked {
		return false
	}
	return math.Abs(rms-s.volume) <= s.volume*s.volumeTolerance &&
		math.Abs(pitch-s.pitch) <= s.pitchTolerance
}

// Reset discards the fingerprint so a new speaker can lock.
func (s *SpeakerLock) Reset() {
	s.volume = 0
	s.pitch = 0
	s.locked = false
}
