package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSystemInstruction = "You are a silent meeting copilot. Listen to the conversation " +
		"without speaking. Only respond when explicitly asked for a suggestion, and then " +
		"reply with one short spoken sentence the user could say next."
	defaultSuggestionPrompt = "Suggest a short response the user could say right now, " +
		"based on the conversation so far."
)

// Config stores runtime configuration for the copilot backend.
type Config struct {
	Gemini  GeminiConfig
	Mic     MicConfig
	Monitor MonitorConfig
	Mixer   MixerConfig
	Session SessionConfig
}

type GeminiConfig struct {
	APIKey            string
	APIBaseURL        string
	Model             string
	SystemInstruction string
	SuggestionPrompt  string
}

type MicConfig struct {
	Device     string
	SampleRate int
	Channels   int
}

type MonitorConfig struct {
	RecorderCommand string
	InputFormat     string
	Source          string
	SampleRate      int
	Channels        int
	ProbeWindow     time.Duration
}

type MixerConfig struct {
	MicGain float64
	TabGain float64
}

type SessionConfig struct {
	FrameSize int
}

// Load resolves configuration from a .env file (if present), environment
// variables, and sensible defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Gemini: GeminiConfig{
			APIKey:            strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			APIBaseURL:        envOrDefault("GEMINI_API_BASE", "wss://generativelanguage.googleapis.com"),
			Model:             envOrDefault("GEMINI_MODEL", "gemini-2.0-flash-live-001"),
			SystemInstruction: envOrDefault("MEETPILOT_SYSTEM_INSTRUCTION", defaultSystemInstruction),
			SuggestionPrompt:  envOrDefault("MEETPILOT_SUGGESTION_PROMPT", defaultSuggestionPrompt),
		},
		Mic: MicConfig{
			Device:     strings.TrimSpace(os.Getenv("MEETPILOT_MIC_DEVICE")),
			SampleRate: envOrDefaultInt("MEETPILOT_SAMPLE_RATE", 16000),
			Channels:   1,
		},
		Monitor: MonitorConfig{
			RecorderCommand: envOrDefault("MEETPILOT_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("MEETPILOT_MONITOR_FORMAT", "pulse"),
			Source: firstNonEmpty(
				os.Getenv("MEETPILOT_MONITOR_SOURCE"),
				os.Getenv("PULSE_MONITOR_SOURCE"),
				"@DEFAULT_MONITOR@",
			),
			SampleRate:  envOrDefaultInt("MEETPILOT_SAMPLE_RATE", 16000),
			Channels:    1,
			ProbeWindow: time.Duration(envOrDefaultInt("MEETPILOT_MONITOR_PROBE_MS", 1500)) * time.Millisecond,
		},
		Mixer: MixerConfig{
			MicGain: envOrDefaultFloat("MEETPILOT_MIC_GAIN", 1.0),
			TabGain: envOrDefaultFloat("MEETPILOT_TAB_GAIN", 1.0),
		},
		Session: SessionConfig{
			FrameSize: envOrDefaultInt("MEETPILOT_FRAME_SIZE", 3200),
		},
	}

	if cfg.Mic.SampleRate <= 0 {
		cfg.Mic.SampleRate = 16000
	}
	if cfg.Monitor.SampleRate <= 0 {
		cfg.Monitor.SampleRate = 16000
	}
	if cfg.Monitor.ProbeWindow <= 0 {
		cfg.Monitor.ProbeWindow = 1500 * time.Millisecond
	}
	if cfg.Mixer.MicGain < 0 {
		cfg.Mixer.MicGain = 1.0
	}
	if cfg.Mixer.TabGain < 0 {
		cfg.Mixer.TabGain = 1.0
	}
	if cfg.Session.FrameSize < 256 {
		cfg.Session.FrameSize = 3200
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
