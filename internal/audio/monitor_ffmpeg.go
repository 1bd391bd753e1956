package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"meetpilot/internal/ports"
)

// MonitorCapture streams the shared application's audio by recording a
// PulseAudio monitor source through ffmpeg. The monitor source is the
// closest desktop analogue of sharing a tab's sound: it carries whatever
// the selected sink is playing.
type MonitorCapture struct {
	command     string
	inputFormat string
	probeWindow time.Duration
}

func NewMonitorCapture(command string, inputFormat string, probeWindow time.Duration) *MonitorCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if probeWindow <= 0 {
		probeWindow = 1500 * time.Millisecond
	}
	return &MonitorCapture{command: command, inputFormat: inputFormat, probeWindow: probeWindow}
}

func (c *MonitorCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Device == "" {
		cfg.Device = "@DEFAULT_MONITOR@"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.inputFormat,
		"-i", cfg.Device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A declined or muted share shows up here as a monitor source that
	// opens but never yields a frame: probe before trusting it.
	type probeResult struct {
		data []byte
		err  error
	}
	probe := make(chan probeResult, 1)
	go func() {
		buf := make([]byte, 4096)
		n, readErr := stdout.Read(buf)
		probe <- probeResult{data: buf[:n], err: readErr}
	}()

	session := &monitorSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}

	select {
	case err := <-waitErr:
		_ = stdout.Close()
		return nil, classifyRecorderExit(err, stderr.String())
	case result := <-probe:
		if result.err != nil {
			_ = session.Stop()
			return nil, classifyRecorderExit(result.err, stderr.String())
		}
		if len(result.data) == 0 {
			_ = session.Stop()
			return nil, fmt.Errorf("%w: monitor source %q opened but yielded nothing", ports.ErrNoTabAudio, cfg.Device)
		}
		session.pending = result.data
	case <-time.After(c.probeWindow):
		_ = session.Stop()
		return nil, fmt.Errorf("%w: no audio from monitor source %q within %v", ports.ErrNoTabAudio, cfg.Device, c.probeWindow)
	}

	return session, nil
}

func classifyRecorderExit(err error, stderr string) error {
	detail := stringsTrimSpaceSafe(stderr)
	lowered := strings.ToLower(detail)

	switch {
	case strings.Contains(lowered, "permission denied") || strings.Contains(lowered, "access denied"):
		return fmt.Errorf("%w: %s", ports.ErrPermissionDenied, detail)
	case strings.Contains(lowered, "not allowed") || strings.Contains(lowered, "operation not permitted") || strings.Contains(lowered, "refused"):
		return fmt.Errorf("%w: %s", ports.ErrCapturePolicy, detail)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		if detail != "" {
			return fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
		}
		return fmt.Errorf("recorder exited before capture started: %w", err)
	}
	if detail != "" {
		return fmt.Errorf("recorder exited before capture started: %s", detail)
	}
	return errors.New("recorder exited before capture started")
}

type monitorSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	pending []byte

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *monitorSession) Read(p []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	return s.stdout.Read(p)
}

func (s *monitorSession) Close() error {
	return s.Stop()
}

func (s *monitorSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
