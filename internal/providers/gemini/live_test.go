package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"meetpilot/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{})
	if p.cfg.APIBaseURL != "wss://generativelanguage.googleapis.com" {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "gemini-2.0-flash-live-001" {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
}

func TestProviderConnectRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: ""})
	_, err := p.Connect(context.Background(), ports.RealtimeConfig{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildSessionURLConvertsHTTPSchemes(t *testing.T) {
	t.Parallel()

	url, err := buildSessionURL(Config{APIKey: "k", APIBaseURL: "https://generativelanguage.googleapis.com/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "wss://generativelanguage.googleapis.com/ws/") {
		t.Fatalf("unexpected session url: %s", url)
	}
	if !strings.Contains(url, "BidiGenerateContent") {
		t.Fatalf("expected bidi endpoint in url: %s", url)
	}
	if !strings.Contains(url, "key=k") {
		t.Fatalf("expected api key in url: %s", url)
	}

	url, err = buildSessionURL(Config{APIKey: "k", APIBaseURL: "http://localhost:8080"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "ws://localhost:8080/ws/") {
		t.Fatalf("unexpected local session url: %s", url)
	}
}

func TestBuildSessionURLInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := buildSessionURL(Config{APIKey: "k", APIBaseURL: ":// bad"})
	if err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestNewSetupMessageShape(t *testing.T) {
	t.Parallel()

	msg := newSetupMessage("gemini-live-test", "stay quiet")
	if msg.Setup.Model != "models/gemini-live-test" {
		t.Fatalf("unexpected model: %q", msg.Setup.Model)
	}
	if msg.Setup.GenerationConfig == nil || len(msg.Setup.GenerationConfig.ResponseModalities) != 1 ||
		msg.Setup.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("unexpected generation config: %+v", msg.Setup.GenerationConfig)
	}
	if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
		t.Fatalf("expected both transcription flags set")
	}
	if msg.Setup.SystemInstruction == nil || msg.Setup.SystemInstruction.Parts[0].Text != "stay quiet" {
		t.Fatalf("unexpected system instruction: %+v", msg.Setup.SystemInstruction)
	}

	bare := newSetupMessage("m", "  ")
	if bare.Setup.SystemInstruction != nil {
		t.Fatalf("expected blank instruction to be omitted")
	}
}

func TestNewAudioMessageEncodesFrame(t *testing.T) {
	t.Parallel()

	frame := []byte{0x01, 0x02, 0x03}
	msg := newAudioMessage("audio/pcm;rate=16000", frame)
	if msg.RealtimeInput.Audio == nil {
		t.Fatalf("expected audio blob")
	}
	if msg.RealtimeInput.Audio.MimeType != "audio/pcm;rate=16000" {
		t.Fatalf("unexpected mime type: %q", msg.RealtimeInput.Audio.MimeType)
	}
	if msg.RealtimeInput.Audio.Data != base64.StdEncoding.EncodeToString(frame) {
		t.Fatalf("unexpected payload: %q", msg.RealtimeInput.Audio.Data)
	}
}

func TestAudioStreamEndMessage(t *testing.T) {
	t.Parallel()

	msg := audioStreamEndMessage()
	if msg.RealtimeInput.Audio != nil || !msg.RealtimeInput.AudioStreamEnd {
		t.Fatalf("unexpected stream end message: %+v", msg.RealtimeInput)
	}
}

func TestNewSuggestionMessageIsCompleteUserTurn(t *testing.T) {
	t.Parallel()

	msg := newSuggestionMessage("what should I say")
	if !msg.ClientContent.TurnComplete {
		t.Fatalf("expected turn complete")
	}
	if len(msg.ClientContent.Turns) != 1 || msg.ClientContent.Turns[0].Role != "user" {
		t.Fatalf("unexpected turns: %+v", msg.ClientContent.Turns)
	}
	if msg.ClientContent.Turns[0].Parts[0].Text != "what should I say" {
		t.Fatalf("unexpected prompt: %+v", msg.ClientContent.Turns[0].Parts)
	}
}

func TestLiveSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &liveSession{sendClosed: true}
	if err := s.SendAudio([]byte("x")); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestLiveSessionSendAudioSkipsEmptyFrames(t *testing.T) {
	t.Parallel()

	s := &liveSession{sendClosed: true}
	if err := s.SendAudio(nil); err != nil {
		t.Fatalf("expected empty frame to be a no-op, got %v", err)
	}
}

func TestLiveSessionCloseSendDuringSendAudio(t *testing.T) {
	t.Parallel()

	s := &liveSession{audio: make(chan []byte, 256), done: make(chan struct{})}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 32; j++ {
				if err := s.SendAudio([]byte{0x01}); err != nil {
					return
				}
			}
		}()
	}

	_ = s.closeSend()
	wg.Wait()

	if err := s.SendAudio([]byte{0x01}); err == nil {
		t.Fatalf("expected send after close to fail")
	}
}

func TestLiveSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &liveSession{audio: make(chan []byte, 1)}
	if err := s.closeSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.closeSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestLiveSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &liveSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("boom"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("unexpected stored error: %v", s.waitErr())
	}

	s.setErr(errors.New("later"))
	if s.waitErr().Error() != "boom" {
		t.Fatalf("expected first error to win, got %v", s.waitErr())
	}
}

func TestTranscriptTextTrims(t *testing.T) {
	t.Parallel()

	if got := transcriptText(&transcriptionPayload{Text: "  hello  "}); got != "hello" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := transcriptText(nil); got != "" {
		t.Fatalf("expected empty text for nil payload, got %q", got)
	}
}
