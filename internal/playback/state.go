package playback

// AssistantState is the conversational state surfaced to the caller via
// the onStatus callback. Idle is both the initial state and the resting
// state between sessions; thinking and speaking are transient.
type AssistantState int

const (
	StateIdle AssistantState = iota
	StateListening
	StateThinking
	StateSpeaking
)

// String returns the caller-facing status name.
func (s AssistantState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// Event drives state transitions.
type Event int

const (
	// EventSessionStart begins listening.
	EventSessionStart Event = iota

	// EventFinalTranscript marks an utterance complete; the reply is now
	// in progress downstream.
	EventFinalTranscript

	// EventReplyReady means audio is ready to play.
	EventReplyReady

	// EventPlaybackDone fires when playback completes or its watchdog
	// times out.
	EventPlaybackDone

	// EventStop is an explicit stop or a fatal error; valid in any state.
	EventStop
)

// Transition is the pure transition function of the assistant state
// machine. It returns the new state and whether the event was valid in the
// current state; invalid events leave the state unchanged so a stray late
// event (a playback watchdog firing after a stop, say) cannot corrupt the
// machine.
func Transition(state AssistantState, ev Event) (AssistantState, bool) {
	if ev == EventStop {
		return StateIdle, true
	}
	switch state {
	case StateIdle:
		if ev == EventSessionStart {
			return StateListening, true
		}
	case StateListening:
		if ev == EventFinalTranscript {
			return StateThinking, true
		}
	case StateThinking:
		if ev == EventReplyReady {
			return StateSpeaking, true
		}
	case StateSpeaking:
		if ev == EventPlaybackDone {
			return StateListening, true
		}
	}
	return state, false
}
