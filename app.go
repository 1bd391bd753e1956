package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"meetpilot/internal/bootstrap"
	"meetpilot/internal/config"
	"meetpilot/internal/domain"
	"meetpilot/internal/usecase"
)

const (
	eventState      = "meetpilot:state"
	eventTranscript = "meetpilot:transcript"
	eventSuggestion = "meetpilot:suggestion"
	eventError      = "meetpilot:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.ConnectionStateChanged(domain.ConnectionStateDisconnected, domain.ReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Stop()
	}
}

// StartSession begins capturing both audio sources and opens the
// realtime session.
func (a *App) StartSession() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		if errors.Is(err, usecase.ErrStartInProgress) {
			return a.controller.Status(), nil
		}
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopSession tears the session down. Calling it while already
// disconnected is a no-op.
func (a *App) StopSession() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.Stop()
	return a.controller.Status(), nil
}

// RequestSuggestion asks for a spoken-response suggestion now.
func (a *App) RequestSuggestion() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RequestSuggestion()
}

// ClearSuggestion dismisses the current suggestion.
func (a *App) ClearSuggestion() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.ClearSuggestion()
	return nil
}

// CopySuggestion puts the current suggestion text on the clipboard.
func (a *App) CopySuggestion() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}

	suggestion := a.controller.Suggestion()
	if suggestion.Text == "" {
		return false, nil
	}
	if err := runtime.ClipboardSetText(a.ctx, suggestion.Text); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, "suggestion ready but clipboard write failed")
		return false, err
	}
	return true, nil
}

// GetTranscript returns the full ordered transcript for the UI.
func (a *App) GetTranscript() []domain.TranscriptItem {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

// GetSuggestion returns the current suggestion slot.
func (a *App) GetSuggestion() domain.Suggestion {
	if a.controller == nil {
		return domain.Suggestion{}
	}
	return a.controller.Suggestion()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.ConnectionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.ConnectionStateDisconnected, Active: false}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":      "Gemini Live",
		"model":         a.cfg.Gemini.Model,
		"micDevice":     a.cfg.Mic.Device,
		"monitorSource": a.cfg.Monitor.Source,
		"sampleRate":    fmt.Sprintf("%d", a.cfg.Mic.SampleRate),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ConnectionStateChanged emits session lifecycle updates to the frontend.
func (a *App) ConnectionStateChanged(state domain.ConnectionState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// TranscriptAppended emits one new transcript item.
func (a *App) TranscriptAppended(item domain.TranscriptItem) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, item)
}

// SuggestionChanged emits the current suggestion slot.
func (a *App) SuggestionChanged(suggestion domain.Suggestion) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSuggestion, suggestion)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonAcquiringAudio:
		return "Requesting microphone and shared audio..."
	case domain.ReasonSessionOpen:
		return "Connected"
	case domain.ReasonSessionRestarted:
		return "Restarting; previous session discarded"
	case domain.ReasonUserStopped:
		return "Session stopped"
	case domain.ReasonShareEnded:
		return "Audio sharing ended from the other side"
	case domain.ReasonCaptureFailed:
		return "Audio capture failed"
	case domain.ReasonMixFailed:
		return "Audio mixing failed"
	case domain.ReasonConnectFailed:
		return "Could not connect to the assistant"
	case domain.ReasonTransportFailed:
		return "Connection to the assistant was lost"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Capture permission denied"
	case domain.ErrorCodeNoMicAudio:
		return "No microphone audio available"
	case domain.ErrorCodeNoTabAudio:
		return "Shared source carries no audio"
	case domain.ErrorCodeCapturePolicy:
		return "Capture rejected by platform policy"
	case domain.ErrorCodeCapture:
		return "Audio capture failed"
	case domain.ErrorCodeMixer:
		return "Audio mixing failed"
	case domain.ErrorCodeConnection:
		return "Could not open assistant session"
	case domain.ErrorCodeTransport:
		return "Assistant session failed"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
