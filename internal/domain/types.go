package domain

import "time"

// ConnectionState models the meeting session lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateError        ConnectionState = "error"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady            StateReason = "ready"
	ReasonAcquiringAudio   StateReason = "acquiring_audio"
	ReasonSessionOpen      StateReason = "session_open"
	ReasonSessionRestarted StateReason = "session_restarted"
	ReasonUserStopped      StateReason = "user_stopped"
	ReasonShareEnded       StateReason = "share_ended"
	ReasonCaptureFailed    StateReason = "capture_failed"
	ReasonMixFailed        StateReason = "mix_failed"
	ReasonConnectFailed    StateReason = "connect_failed"
	ReasonTransportFailed  StateReason = "transport_failed"
)

// ErrorCode identifies backend failure categories surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeNoMicAudio       ErrorCode = "no_mic_audio"
	ErrorCodeNoTabAudio       ErrorCode = "no_tab_audio"
	ErrorCodeCapturePolicy    ErrorCode = "capture_policy"
	ErrorCodeCapture          ErrorCode = "capture"
	ErrorCodeMixer            ErrorCode = "mixer"
	ErrorCodeConnection       ErrorCode = "connection"
	ErrorCodeTransport        ErrorCode = "transport"
	ErrorCodeAudioStream      ErrorCode = "audio_stream"
	ErrorCodeClipboard        ErrorCode = "clipboard"
)

// Speaker identifies which side of the conversation produced a transcript item.
type Speaker string

const (
	SpeakerCaptured  Speaker = "captured"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEvent is an incremental transcription message from the realtime service.
type TranscriptEvent struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
	Final   bool    `json:"final"`
}

// TranscriptItem is one immutable entry in the ordered transcript log.
type TranscriptItem struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
}

// Suggestion is the single current assistant response suggestion.
type Suggestion struct {
	Text       string `json:"text"`
	Generating bool   `json:"generating"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   ConnectionState `json:"state"`
	Active  bool            `json:"active"`
	Message string          `json:"message,omitempty"`
}
