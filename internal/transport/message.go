package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageKind classifies inbound service messages.
type MessageKind int

const (
	// KindPartial is an interim transcript for the in-progress utterance.
	KindPartial MessageKind = iota

	// KindFinal is a completed transcript.
	KindFinal

	// KindAudio carries a synthesized audio payload (binary frame, inline
	// base64, or resolved from an audio_url).
	KindAudio

	// KindAudioURL asks the client to fetch the audio out-of-band.
	KindAudioURL

	// KindTTSProcessing is a synthesis-in-progress status notification.
	KindTTSProcessing

	// KindTTSError reports a synthesis failure.
	KindTTSError

	// KindIgnored marks messages with no recognised shape. Malformed or
	// unknown messages are logged and dropped — never a session error.
	KindIgnored
)

// String returns the human-readable name of the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	case KindAudio:
		return "audio"
	case KindAudioURL:
		return "audio_url"
	case KindTTSProcessing:
		return "tts_processing"
	case KindTTSError:
		return "tts_error"
	default:
		return "ignored"
	}
}

// Message is one decoded inbound service message.
type Message struct {
	Kind MessageKind

	// Text is the transcript for partial/final messages, or the
	// human-readable detail for status messages.
	Text string

	// Audio is the raw audio payload for KindAudio.
	Audio []byte

	// URL is the fetch location for KindAudioURL. May be service-relative.
	URL string
}

// textEnvelope is the superset of all recognised inbound JSON shapes. The
// service ecosystem is heterogeneous, so every known field is optional and
// the decoder infers the kind from whichever fields are present.
type textEnvelope struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	AudioURL   string `json:"audio_url"`
	AudioData  string `json:"audio_data"`
	AudioBytes string `json:"audio_bytes"`
}

// ParseText decodes an inbound text frame into a [Message]. Unparseable
// JSON or unrecognised shapes return KindIgnored along with an error
// describing why, so the caller can log and move on.
func ParseText(data []byte) (Message, error) {
	var env textEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{Kind: KindIgnored}, fmt.Errorf("transport: unparseable message: %w", err)
	}

	switch env.Type {
	case "partial":
		return Message{Kind: KindPartial, Text: env.Text}, nil
	case "final":
		return Message{Kind: KindFinal, Text: env.Text}, nil
	case "tts_processing":
		return Message{Kind: KindTTSProcessing, Text: env.Message}, nil
	case "tts_error":
		detail := env.Error
		if detail == "" {
			detail = env.Message
		}
		return Message{Kind: KindTTSError, Text: detail}, nil
	}

	// Shapes without a type tag, most specific first.
	if env.AudioURL != "" {
		return Message{Kind: KindAudioURL, URL: env.AudioURL}, nil
	}
	if b64 := firstNonEmpty(env.AudioData, env.AudioBytes); b64 != "" {
		audio, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Message{Kind: KindIgnored}, fmt.Errorf("transport: bad inline audio encoding: %w", err)
		}
		return Message{Kind: KindAudio, Audio: audio}, nil
	}
	if env.Text != "" {
		// Untyped text is treated as a final transcript.
		return Message{Kind: KindFinal, Text: env.Text}, nil
	}

	return Message{Kind: KindIgnored}, fmt.Errorf("transport: unrecognised message shape")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
