package bootstrap

import (
	"meetpilot/internal/audio"
	"meetpilot/internal/config"
	"meetpilot/internal/ports"
	"meetpilot/internal/providers/gemini"
	"meetpilot/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewController(
		audio.NewMicCapture(),
		audio.NewMonitorCapture(cfg.Monitor.RecorderCommand, cfg.Monitor.InputFormat, cfg.Monitor.ProbeWindow),
		audio.NewMixer(cfg.Mixer.MicGain, cfg.Mixer.TabGain),
		gemini.NewProvider(gemini.Config{
			APIKey:     cfg.Gemini.APIKey,
			APIBaseURL: cfg.Gemini.APIBaseURL,
			Model:      cfg.Gemini.Model,
		}),
		eventSink,
		usecase.Config{
			Mic: ports.AudioConfig{
				SampleRate: cfg.Mic.SampleRate,
				Channels:   cfg.Mic.Channels,
				Device:     cfg.Mic.Device,
			},
			Tab: ports.AudioConfig{
				SampleRate: cfg.Monitor.SampleRate,
				Channels:   cfg.Monitor.Channels,
				Device:     cfg.Monitor.Source,
			},
			Realtime: ports.RealtimeConfig{
				SampleRate:        cfg.Mic.SampleRate,
				Channels:          cfg.Mic.Channels,
				SystemInstruction: cfg.Gemini.SystemInstruction,
				SuggestionPrompt:  cfg.Gemini.SuggestionPrompt,
			},
			FrameSize: cfg.Session.FrameSize,
		},
	)

	return Services{Controller: controller, Config: cfg}, nil
}
