package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meetpilot/internal/domain"
	"meetpilot/internal/ports"
)

const (
	bidiPath         = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	setupAckTimeout  = 10 * time.Second
	defaultSuggest   = "Suggest a short response the user could say right now."
	defaultModelName = "gemini-2.0-flash-live-001"
)

// Config controls the Gemini Live websocket settings.
type Config struct {
	APIKey     string
	APIBaseURL string
	Model      string
}

// Provider implements ports.RealtimeProvider for the Gemini Live API.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "wss://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModelName
	}
	return &Provider{cfg: cfg}
}

// Connect opens one live session and returns only after the service has
// acknowledged setup. The session streams PCM frames out and transcription
// events back in arrival order.
func (p *Provider) Connect(ctx context.Context, cfg ports.RealtimeConfig) (ports.RealtimeSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	wsURL, err := buildSessionURL(p.cfg)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini live websocket: %w", err)
	}

	if err := conn.WriteJSON(newSetupMessage(p.cfg.Model, cfg.SystemInstruction)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send session setup: %w", err)
	}
	if err := awaitSetupComplete(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	suggestPrompt := strings.TrimSpace(cfg.SuggestionPrompt)
	if suggestPrompt == "" {
		suggestPrompt = defaultSuggest
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	session := &liveSession{
		conn:          conn,
		suggestPrompt: suggestPrompt,
		audioMime:     fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		events:        make(chan domain.TranscriptEvent, 64),
		audio:         make(chan []byte, 32),
		control:       make(chan string, 4),
		done:          make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	log.Printf("gemini-live: session open, model=%s", p.cfg.Model)
	return session, nil
}

func awaitSetupComplete(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(setupAckTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("session was not acknowledged: %w", err)
	}

	var message serverMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return fmt.Errorf("unexpected setup response: %w", err)
	}
	if message.SetupComplete == nil {
		return errors.New("service did not acknowledge session setup")
	}
	return nil
}

type liveSession struct {
	conn          *websocket.Conn
	suggestPrompt string
	audioMime     string

	events  chan domain.TranscriptEvent
	audio   chan []byte
	control chan string
	done    chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *liveSession) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	copied := append([]byte(nil), frame...)

	// Hold the read lock across the send: closeSend takes the write lock
	// before closing the channel, so no frame is ever in flight then.
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// RequestSuggestion sends the out-of-band suggestion trigger into the
// open session. Per-frame audio keeps flowing; the trigger is one
// complete user turn.
func (s *liveSession) RequestSuggestion() error {
	select {
	case s.control <- s.suggestPrompt:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *liveSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *liveSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close asks the service to end the session with a normal close frame,
// then tears down locally whether or not the frame was delivered.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.closeSend()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *liveSession) closeSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *liveSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case frame, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteJSON(audioStreamEndMessage()); err != nil {
					s.setErr(fmt.Errorf("failed to end audio stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteJSON(newAudioMessage(s.audioMime, frame)); err != nil {
				s.setErr(fmt.Errorf("failed to send audio frame: %w", err))
				return
			}
		case prompt := <-s.control:
			if err := s.conn.WriteJSON(newSuggestionMessage(prompt)); err != nil {
				s.setErr(fmt.Errorf("failed to send suggestion trigger: %w", err))
				return
			}
		}
	}
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read service event: %w", err))
			return
		}

		var message serverMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}

		if message.GoAway != nil {
			log.Printf("gemini-live: service asked the session to end")
			s.setErr(errors.New("service ended the session"))
			return
		}

		content := message.ServerContent
		if content == nil {
			continue
		}

		if text := transcriptText(content.InputTranscription); text != "" {
			s.emit(domain.TranscriptEvent{
				Speaker: domain.SpeakerCaptured,
				Text:    text,
				Final:   content.TurnComplete || content.InputTranscription.Finished,
			})
		}
		if text := transcriptText(content.OutputTranscription); text != "" {
			s.emit(domain.TranscriptEvent{
				Speaker: domain.SpeakerAssistant,
				Text:    text,
				Final:   content.TurnComplete || content.GenerationComplete || content.OutputTranscription.Finished,
			})
		}
	}
}

// emit preserves arrival order: delivery blocks until the consumer takes
// the event, so no reordering or dropping happens here.
func (s *liveSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

func transcriptText(transcription *transcriptionPayload) string {
	if transcription == nil {
		return ""
	}
	return strings.TrimSpace(transcription.Text)
}

// Outgoing message shapes.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *contentPayload   `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type contentPayload struct {
	Role  string        `json:"role,omitempty"`
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text string `json:"text,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInputPayload `json:"realtimeInput"`
}

type realtimeInputPayload struct {
	Audio          *audioBlob `json:"audio,omitempty"`
	AudioStreamEnd bool       `json:"audioStreamEnd,omitempty"`
}

type audioBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientContentMessage struct {
	ClientContent clientContentPayload `json:"clientContent"`
}

type clientContentPayload struct {
	Turns        []contentPayload `json:"turns"`
	TurnComplete bool             `json:"turnComplete"`
}

func newSetupMessage(model string, systemInstruction string) setupMessage {
	payload := setupPayload{
		Model:                    "models/" + model,
		GenerationConfig:         &generationConfig{ResponseModalities: []string{"AUDIO"}},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if strings.TrimSpace(systemInstruction) != "" {
		payload.SystemInstruction = &contentPayload{
			Parts: []partPayload{{Text: systemInstruction}},
		}
	}
	return setupMessage{Setup: payload}
}

func newAudioMessage(mimeType string, frame []byte) realtimeInputMessage {
	return realtimeInputMessage{
		RealtimeInput: realtimeInputPayload{
			Audio: &audioBlob{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(frame),
			},
		},
	}
}

func audioStreamEndMessage() realtimeInputMessage {
	return realtimeInputMessage{RealtimeInput: realtimeInputPayload{AudioStreamEnd: true}}
}

func newSuggestionMessage(prompt string) clientContentMessage {
	return clientContentMessage{
		ClientContent: clientContentPayload{
			Turns: []contentPayload{
				{Role: "user", Parts: []partPayload{{Text: prompt}}},
			},
			TurnComplete: true,
		},
	}
}

// Incoming message shapes.

type serverMessage struct {
	SetupComplete *struct{}             `json:"setupComplete,omitempty"`
	ServerContent *serverContentPayload `json:"serverContent,omitempty"`
	GoAway        *struct{}             `json:"goAway,omitempty"`
}

type serverContentPayload struct {
	InputTranscription  *transcriptionPayload `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionPayload `json:"outputTranscription,omitempty"`
	TurnComplete        bool                  `json:"turnComplete,omitempty"`
	GenerationComplete  bool                  `json:"generationComplete,omitempty"`
}

type transcriptionPayload struct {
	Text     string `json:"text"`
	Finished bool   `json:"finished,omitempty"`
}

func buildSessionURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "wss://generativelanguage.googleapis.com"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	sessionURL, err := url.Parse(base + bidiPath)
	if err != nil {
		return "", fmt.Errorf("invalid Gemini API base URL: %w", err)
	}

	query := sessionURL.Query()
	query.Set("key", cfg.APIKey)
	sessionURL.RawQuery = query.Encode()
	return sessionURL.String(), nil
}
