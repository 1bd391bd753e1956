package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"meetpilot/internal/domain"
	"meetpilot/internal/ports"
)

var ErrStartInProgress = errors.New("a session start is already in progress")

// Config controls capture and session behavior.
type Config struct {
	Mic       ports.AudioConfig
	Tab       ports.AudioConfig
	Realtime  ports.RealtimeConfig
	FrameSize int
}

// Controller owns the session lifecycle: it acquires both audio sources,
// mixes them, opens the realtime session, and supervises teardown. Every
// failure path releases everything acquired before it.
type Controller struct {
	mic      ports.AudioCapture
	tab      ports.AudioCapture
	mixer    ports.AudioMixer
	provider ports.RealtimeProvider
	events   ports.EventSink
	cfg      Config

	log *transcriptLog

	mu            sync.Mutex
	current       *activeSession
	starting      bool
	pendingCancel context.CancelFunc
	lastError     string
}

func NewController(
	mic ports.AudioCapture,
	tab ports.AudioCapture,
	mixer ports.AudioMixer,
	provider ports.RealtimeProvider,
	events ports.EventSink,
	cfg Config,
) *Controller {
	if cfg.FrameSize < 256 {
		cfg.FrameSize = 3200
	}
	return &Controller{
		mic:      mic,
		tab:      tab,
		mixer:    mixer,
		provider: provider,
		events:   events,
		cfg:      cfg,
		log:      newTranscriptLog(),
	}
}

// Start runs the acquire → mix → connect sequence. Any previous session
// is torn down first; any step failure rolls back the steps before it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.starting {
		c.mu.Unlock()
		return ErrStartInProgress
	}
	previous := c.current
	c.current = nil
	c.starting = true
	c.lastError = ""
	c.mu.Unlock()

	if previous != nil {
		c.teardown(previous)
	}

	reason := domain.ReasonAcquiringAudio
	if previous != nil {
		reason = domain.ReasonSessionRestarted
	}
	c.events.ConnectionStateChanged(domain.ConnectionStateConnecting, reason)

	sessionCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pendingCancel = cancel
	c.mu.Unlock()

	mic, err := c.mic.Start(sessionCtx, c.cfg.Mic)
	if err != nil {
		return c.failStart(cancel, captureErrorCode(err), domain.ReasonCaptureFailed,
			fmt.Errorf("microphone capture failed: %w", err))
	}

	tab, err := c.tab.Start(sessionCtx, c.cfg.Tab)
	if err != nil {
		_ = mic.Stop()
		return c.failStart(cancel, captureErrorCode(err), domain.ReasonCaptureFailed,
			fmt.Errorf("shared audio capture failed: %w", err))
	}

	mixed, err := c.mixer.Mix(mic, tab)
	if err != nil {
		_ = tab.Stop()
		_ = mic.Stop()
		return c.failStart(cancel, domain.ErrorCodeMixer, domain.ReasonMixFailed,
			fmt.Errorf("audio mixing failed: %w", err))
	}

	stream, err := c.provider.Connect(sessionCtx, c.cfg.Realtime)
	if err != nil {
		_ = mixed.Stop()
		_ = tab.Stop()
		_ = mic.Stop()
		return c.failStart(cancel, domain.ErrorCodeConnection, domain.ReasonConnectFailed,
			fmt.Errorf("could not open realtime session: %w", err))
	}

	active := &activeSession{
		cancel:     cancel,
		mic:        mic,
		tab:        tab,
		mixed:      mixed,
		stream:     stream,
		state:      domain.ConnectionStateConnected,
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	c.mu.Lock()
	stopped := sessionCtx.Err() != nil
	if !stopped {
		c.current = active
	}
	c.starting = false
	c.pendingCancel = nil
	c.mu.Unlock()

	if stopped {
		// Stop arrived while connecting. The worker goroutines never
		// started, so mark their channels done before releasing.
		close(active.audioDone)
		close(active.eventsDone)
		c.teardown(active)
		c.events.ConnectionStateChanged(domain.ConnectionStateDisconnected, domain.ReasonUserStopped)
		return sessionCtx.Err()
	}

	go consumeSessionEvents(active.stream, c.log, c.events, active.eventsDone)
	go pumpAudioFrames(active.mixed, active.stream, c.cfg.FrameSize, c.events, &active.pump, active.audioDone)
	go c.superviseAudio(active)

	c.events.ConnectionStateChanged(domain.ConnectionStateConnected, domain.ReasonSessionOpen)
	return nil
}

// Stop is idempotent: with no session and no start in flight it is a
// no-op, and stopping mid-connect still releases partial acquisitions
// through the start sequence's own rollback.
func (c *Controller) Stop() {
	c.mu.Lock()
	active := c.current
	c.current = nil
	if c.pendingCancel != nil {
		// Cancel under the lock: a start past its cancellation check has
		// already registered the session, so this stop sees it as current.
		c.pendingCancel()
		c.pendingCancel = nil
	}
	c.mu.Unlock()

	if active == nil {
		return
	}

	c.teardown(active)
	active.setState(domain.ConnectionStateDisconnected)
	c.events.ConnectionStateChanged(domain.ConnectionStateDisconnected, domain.ReasonUserStopped)
}

// RequestSuggestion asks the service for a spoken-response suggestion.
// With no open session it has no observable effect.
func (c *Controller) RequestSuggestion() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return nil
	}

	if err := active.stream.RequestSuggestion(); err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, fmt.Sprintf("suggestion request failed: %v", err))
		return err
	}
	c.events.SuggestionChanged(c.log.MarkGenerating())
	return nil
}

// ClearSuggestion dismisses the current suggestion without touching the log.
func (c *Controller) ClearSuggestion() {
	c.events.SuggestionChanged(c.log.ClearSuggestion())
}

// Transcript returns the full ordered transcript.
func (c *Controller) Transcript() []domain.TranscriptItem {
	return c.log.Items()
}

// Suggestion returns the current suggestion slot.
func (c *Controller) Suggestion() domain.Suggestion {
	return c.log.Suggestion()
}

// Status returns the current connection status.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starting {
		return domain.Status{State: domain.ConnectionStateConnecting, Active: true}
	}
	if c.current == nil {
		if c.lastError != "" {
			return domain.Status{State: domain.ConnectionStateError, Active: false, Message: c.lastError}
		}
		return domain.Status{State: domain.ConnectionStateDisconnected, Active: false}
	}
	state := c.current.getState()
	return domain.Status{State: state, Active: state == domain.ConnectionStateConnected}
}

// superviseAudio reacts to the audio pump ending on its own: a revoked
// share tears down like an explicit stop, anything else enters Error.
func (c *Controller) superviseAudio(active *activeSession) {
	<-active.audioDone
	err := active.pump.get()
	if err == nil || errors.Is(err, io.EOF) {
		// Local teardown stopped the mixed stream; nothing to supervise.
		return
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	state := domain.ConnectionStateError
	reason := domain.ReasonTransportFailed
	if errors.Is(err, ports.ErrShareEnded) {
		state = domain.ConnectionStateDisconnected
		reason = domain.ReasonShareEnded
	} else if errors.Is(err, ports.ErrMicEnded) {
		reason = domain.ReasonCaptureFailed
	}
	if state == domain.ConnectionStateError {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
	}

	c.teardown(active)
	active.setState(state)
	c.events.ConnectionStateChanged(state, reason)
}

// teardown releases every resource the session holds. The mixed stream
// stops first and the audio pump drains before anything touches the
// realtime session, so a clean stop never surfaces as a transport error.
// Cancellation waits too: the provider closes the session on it.
func (c *Controller) teardown(active *activeSession) {
	_ = active.mixed.Stop()
	<-active.audioDone
	active.cancel()
	_ = active.stream.Close()
	_ = active.tab.Stop()
	_ = active.mic.Stop()
	_ = waitForSession(active.stream, 4*time.Second)
	<-active.eventsDone
}

func (c *Controller) failStart(cancel context.CancelFunc, code domain.ErrorCode, reason domain.StateReason, err error) error {
	cancel()

	c.mu.Lock()
	c.starting = false
	c.pendingCancel = nil
	if errors.Is(err, context.Canceled) {
		c.mu.Unlock()
		c.events.ConnectionStateChanged(domain.ConnectionStateDisconnected, domain.ReasonUserStopped)
		return err
	}
	c.lastError = err.Error()
	c.mu.Unlock()

	c.events.SessionError(code, err.Error())
	c.events.ConnectionStateChanged(domain.ConnectionStateError, reason)
	return err
}

func captureErrorCode(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, ports.ErrPermissionDenied):
		return domain.ErrorCodePermissionDenied
	case errors.Is(err, ports.ErrNoMicAudio):
		return domain.ErrorCodeNoMicAudio
	case errors.Is(err, ports.ErrNoTabAudio):
		return domain.ErrorCodeNoTabAudio
	case errors.Is(err, ports.ErrCapturePolicy):
		return domain.ErrorCodeCapturePolicy
	default:
		return domain.ErrorCodeCapture
	}
}
