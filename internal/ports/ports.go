package ports

import (
	"context"
	"errors"
	"io"

	"meetpilot/internal/domain"
)

// Capture failure categories. Adapters wrap these so the orchestration
// layer can translate them without knowing the capture backend.
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNoMicAudio       = errors.New("microphone produced no audio")
	ErrNoTabAudio       = errors.New("shared source produced no audio")
	ErrCapturePolicy    = errors.New("capture rejected by platform policy")
)

// Source-ended sentinels reported through the mixed stream, so teardown
// can tell a share revoked from the platform side from a dead microphone.
var (
	ErrMicEnded   = errors.New("microphone source ended")
	ErrShareEnded = errors.New("shared source ended")
)

// AudioConfig describes how an audio source should be captured.
type AudioConfig struct {
	SampleRate int
	Channels   int
	Device     string
}

// AudioSession is a live PCM source. Read returns 16-bit little-endian
// mono samples until the source ends or is stopped.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates capture sessions for one audio source.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioMixer sums two live sources into one derived stream. The mixed
// session has its own lifetime and must be stopped separately from the
// sources it was built from.
type AudioMixer interface {
	Mix(mic AudioSession, tab AudioSession) (AudioSession, error)
}

// RealtimeConfig describes provider-agnostic realtime session settings.
type RealtimeConfig struct {
	SampleRate        int
	Channels          int
	SystemInstruction string
	SuggestionPrompt  string
}

// RealtimeSession is an open bidirectional session with the AI service.
type RealtimeSession interface {
	SendAudio(frame []byte) error
	RequestSuggestion() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// RealtimeProvider opens realtime sessions. Connect returns only after
// the service has acknowledged the session is open.
type RealtimeProvider interface {
	Connect(ctx context.Context, cfg RealtimeConfig) (RealtimeSession, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ConnectionStateChanged(state domain.ConnectionState, reason domain.StateReason)
	TranscriptAppended(item domain.TranscriptItem)
	SuggestionChanged(suggestion domain.Suggestion)
	SessionError(code domain.ErrorCode, detail string)
}
