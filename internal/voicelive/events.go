package voicelive

import "encoding/json"

// Client-facing event types published to session subscribers.
const (
	EventSessionReady          = "session_ready"
	EventAssistantAudioDelta   = "assistant_audio_delta"
	EventAssistantAudioDone    = "assistant_audio_done"
	EventTranscriptDelta       = "assistant_transcript_delta"
	EventTranscriptDone        = "assistant_transcript_done"
	EventUserTranscript        = "user_transcript_completed"
	EventSpeechStarted         = "speech_started"
	EventSpeechStopped         = "speech_stopped"
	EventInputAudioCommitted   = "input_audio_committed"
	EventAvatarConnecting      = "avatar_connecting"
	EventResponseStatus        = "response_status"
	EventFunctionCallCompleted = "function_call_completed"
	EventError                 = "error"
	EventGeneric               = "event"
)

// Event is one client-facing event. It serializes flat: the type tag and the
// payload fields share the top-level JSON object. Immutable once constructed.
type Event struct {
	Type   string
	Fields map[string]any
}

// NewEvent builds an event with the given type tag and payload fields.
func NewEvent(typ string, fields map[string]any) Event {
	return Event{Type: typ, Fields: fields}
}

// MarshalJSON flattens the type tag into the payload object.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["type"] = e.Type
	return json.Marshal(m)
}
