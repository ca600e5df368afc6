// Package playback turns synthesized audio payloads into played-out speech
// and tracks the assistant's conversational state. Payload containers are
// auto-detected and decoding is a chain of independently testable
// strategies, tried in order until one yields a playable clip.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

// Format identifies the container of a synthesized audio payload.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOgg
	FormatRawPCM
)

// String returns the short container name.
func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	case FormatRawPCM:
		return "pcm"
	default:
		return "unknown"
	}
}

// ErrUndecodable is returned when every decode strategy has been exhausted.
// It is terminal for the single playback request, never for the session.
var ErrUndecodable = errors.New("playback: payload not decodable by any strategy")

// Clip is one playable unit of audio. For WAV and raw-PCM payloads the
// samples are decoded and Duration is exact; for compressed containers the
// payload passes through untouched and Duration is zero, meaning unknown —
// the player substitutes its maximum watchdog in that case.
type Clip struct {
	Format     Format
	Payload    []byte
	Samples    []float32
	SampleRate int
	Duration   time.Duration
}

var id3Magic = []byte("ID3")

// DetectFormat sniffs the container by magic bytes: RIFF....WAVE for WAV,
// an ID3 tag or an MPEG frame sync for MP3, OggS for Ogg.
func DetectFormat(payload []byte) Format {
	if audio.IsWAV(payload) {
		return FormatWAV
	}
	if len(payload) >= 4 && bytes.Equal(payload[:4], []byte("OggS")) {
		return FormatOgg
	}
	if len(payload) >= 3 && bytes.Equal(payload[:3], id3Magic) {
		return FormatMP3
	}
	// MPEG audio frame sync: 11 set bits straddling the first two bytes.
	if len(payload) >= 2 && payload[0] == 0xff && payload[1]&0xe0 == 0xe0 {
		return FormatMP3
	}
	return FormatUnknown
}

// A decodeStrategy attempts to turn a payload into a Clip. Strategies
// report (zero Clip, error) on failure so the chain can move on.
type decodeStrategy struct {
	name   string
	decode func(payload []byte, captureRate int) (Clip, error)
}

// strategies is the ordered compatibility chain: standard decode of the
// payload as delivered, the same decode against a defensive copy (some
// callers hand over buffers a prior read has already consumed), and
// finally reinterpretation as raw 16-bit PCM at the capture rate.
var strategies = []decodeStrategy{
	{"standard", decodeStandard},
	{"defensive-copy", decodeDefensiveCopy},
	{"raw-pcm", decodeRawPCM},
}

// Decode runs the strategy chain and returns the first playable clip.
// captureRate is the session's capture sample rate, used only by the
// raw-PCM reinterpretation fallback.
func Decode(payload []byte, captureRate int) (Clip, error) {
	var errs []error
	for _, st := range strategies {
		clip, err := st.decode(payload, captureRate)
		if err == nil {
			return clip, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
	}
	return Clip{}, fmt.Errorf("%w: %w", ErrUndecodable, errors.Join(errs...))
}

func decodeStandard(payload []byte, _ int) (Clip, error) {
	switch f := DetectFormat(payload); f {
	case FormatWAV:
		pcm, info, err := audio.ParseWAV(payload)
		if err != nil {
			return Clip{}, err
		}
		if info.SampleRate <= 0 {
			return Clip{}, fmt.Errorf("bad WAV sample rate %d", info.SampleRate)
		}
		if info.BitsPerSample != 16 {
			return Clip{}, fmt.Errorf("unsupported WAV bit depth %d", info.BitsPerSample)
		}
		if info.Channels == 2 {
			pcm = audio.StereoToMono(pcm)
		} else if info.Channels != 1 {
			return Clip{}, fmt.Errorf("unsupported WAV channel count %d", info.Channels)
		}
		samples := audio.DecodePCM16(pcm)
		return Clip{
			Format:     FormatWAV,
			Payload:    payload,
			Samples:    samples,
			SampleRate: info.SampleRate,
			Duration:   time.Duration(len(samples)) * time.Second / time.Duration(info.SampleRate),
		}, nil
	case FormatMP3, FormatOgg:
		// Compressed containers pass through for the sink to decode;
		// duration stays unknown.
		return Clip{Format: f, Payload: payload}, nil
	default:
		return Clip{}, errors.New("unrecognised container")
	}
}

func decodeDefensiveCopy(payload []byte, captureRate int) (Clip, error) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return decodeStandard(cp, captureRate)
}

// minPlausiblePCM rejects payloads too small to be an audio clip when
// reinterpreting unknown data as raw PCM.
const minPlausiblePCM = 64

func decodeRawPCM(payload []byte, captureRate int) (Clip, error) {
	if len(payload) < minPlausiblePCM || len(payload)%2 != 0 {
		return Clip{}, errors.New("size not plausible for raw pcm16")
	}
	if captureRate <= 0 {
		captureRate = audio.DefaultSampleRate
	}
	samples := audio.DecodePCM16(payload)
	return Clip{
		Format:     FormatRawPCM,
		Payload:    payload,
		Samples:    samples,
		SampleRate: captureRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(captureRate),
	}, nil
}
