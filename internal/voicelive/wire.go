package voicelive

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Upstream event type tags, outbound.
const (
	typeSessionUpdate    = "session.update"
	typeItemCreate       = "conversation.item.create"
	typeResponseCreate   = "response.create"
	typeAudioAppend      = "input_audio_buffer.append"
	typeAudioCommit      = "input_audio_buffer.commit"
	typeAudioClear       = "input_audio_buffer.clear"
	typeAvatarConnect    = "session.avatar.connect"
)

// Upstream event type tags, inbound.
const (
	typeError            = "error"
	typeAudioDelta       = "response.audio.delta"
	typeAudioDone        = "response.audio.done"
	typeTranscriptDelta  = "response.audio_transcript.delta"
	typeTranscriptDone   = "response.audio_transcript.done"
	typeInputTranscribed = "conversation.item.input_audio_transcription.completed"
	typeSpeechStarted    = "input_audio_buffer.speech_started"
	typeSpeechStopped    = "input_audio_buffer.speech_stopped"
	typeAudioCommitted   = "input_audio_buffer.committed"
	typeAvatarConnecting = "session.avatar.connecting"
	typeResponseDone     = "response.done"
)

// SessionConfig is the immutable outbound session configuration sent in the
// initial session.update: modalities, voice, audio formats, avatar parameters
// and the advertised tool catalogue. Fixed at session construction.
type SessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Avatar                  *AvatarParams        `json:"avatar,omitempty"`
	Tools                   []ToolDefinition     `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
}

// TranscriptionConfig selects the input transcription model.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type            string  `json:"type"`
	Threshold       float64 `json:"threshold,omitempty"`
	SilenceDuration int     `json:"silence_duration_ms,omitempty"`
}

// AvatarParams selects the avatar character and video quality.
type AvatarParams struct {
	Character  string      `json:"character"`
	Style      string      `json:"style,omitempty"`
	Customized bool        `json:"customized"`
	Video      AvatarVideo `json:"video"`
}

// AvatarVideo holds avatar video stream parameters.
type AvatarVideo struct {
	Resolution AvatarResolution `json:"resolution"`
	Bitrate    int              `json:"bitrate"`
}

// AvatarResolution is the avatar video frame size.
type AvatarResolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToolDefinition describes one callable function advertised to the model.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// envelope wraps a logical event type and payload fields into an upstream
// message carrying a fresh event id and the type tag.
func envelope(typ string, fields map[string]any) ([]byte, error) {
	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["event_id"] = uuid.New().String()
	msg["type"] = typ
	return json.Marshal(msg)
}

// serverEvent is the union of inbound message fields the relay inspects.
// Unknown type tags keep their raw payload for passthrough.
type serverEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id"`
	Delta      string          `json:"delta"`
	ItemID     string          `json:"item_id"`
	Transcript string          `json:"transcript"`
	Error      json.RawMessage `json:"error"`
	ServerSDP  string          `json:"server_sdp"`
	Response   *serverResponse `json:"response"`
}

// serverResponse is the body of a response.done event.
type serverResponse struct {
	Status string       `json:"status"`
	Output []serverItem `json:"output"`
}

// serverItem is one output item of a completed response.
type serverItem struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}
