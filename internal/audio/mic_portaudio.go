package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"meetpilot/internal/ports"
)

// MicCapture streams microphone PCM through portaudio.
type MicCapture struct{}

func NewMicCapture() *MicCapture {
	return &MicCapture{}
}

func (c *MicCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio host: %w", err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default input device", ports.ErrNoMicAudio)
	}
	if device.MaxInputChannels < cfg.Channels {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: device %q reports no input channels", ports.ErrNoMicAudio, device.Name)
	}

	// 100ms of frames per read keeps latency low without hammering the host.
	frames := cfg.SampleRate / 10
	buffer := make([]int16, frames*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ports.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ports.ErrPermissionDenied, err)
	}

	session := &micSession{
		stream:  stream,
		frames:  buffer,
		stopped: make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.stopped:
		}
	}()

	return session, nil
}

type micSession struct {
	stream  *portaudio.Stream
	frames  []int16
	pending []byte

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

func (s *micSession) Read(p []byte) (int, error) {
	select {
	case <-s.stopped:
		return 0, io.EOF
	default:
	}

	if len(s.pending) == 0 {
		if err := s.stream.Read(); err != nil {
			select {
			case <-s.stopped:
				return 0, io.EOF
			default:
			}
			return 0, fmt.Errorf("read microphone frames: %w", err)
		}
		s.pending = int16LEBytes(s.frames)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *micSession) Close() error {
	return s.Stop()
}

func (s *micSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)

		if err := s.stream.Stop(); err != nil {
			s.stopErr = err
		}
		if err := s.stream.Close(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
		portaudio.Terminate()
	})
	return s.stopErr
}

// int16LEBytes encodes samples as 16-bit little-endian PCM.
func int16LEBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
