package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meetpilot/internal/ports"
)

func TestMonitorCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewMonitorCapture(script, "pulse", time.Second)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestMonitorCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewMonitorCapture(script, "pulse", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMonitorCaptureDeniedSourceIsPermissionError(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'pulse: access denied' 1>&2\nexit 1\n")
	capture := NewMonitorCapture(script, "pulse", time.Second)

	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, ports.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestMonitorCapturePolicyRefusalIsClassified(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "policy.sh", "#!/usr/bin/env bash\necho 'capture not allowed by policy' 1>&2\nexit 1\n")
	capture := NewMonitorCapture(script, "pulse", time.Second)

	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, ports.ErrCapturePolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
}

func TestMonitorCaptureSilentSourceIsNoTabAudio(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "silent.sh", "#!/usr/bin/env bash\nsleep 2\n")
	capture := NewMonitorCapture(script, "pulse", 200*time.Millisecond)

	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, ports.ErrNoTabAudio) {
		t.Fatalf("expected no-tab-audio error, got %v", err)
	}
}

func TestMonitorCaptureReadReportsEOFWhenRecorderEnds(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "short.sh", "#!/usr/bin/env bash\nprintf 'audio'\nsleep 0.2\n")
	capture := NewMonitorCapture(script, "pulse", time.Second)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Stop()

	buf := make([]byte, 16)
	n, _ := session.Read(buf)
	if n != 5 {
		t.Fatalf("expected probe bytes back first, got n=%d", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, readErr := session.Read(buf)
		if readErr != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected read to end after recorder exit")
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestClassifyRecorderExitPrefersStderrSignals(t *testing.T) {
	t.Parallel()

	err := classifyRecorderExit(errors.New("exit status 1"), "Permission denied while opening source")
	if !errors.Is(err, ports.ErrPermissionDenied) {
		t.Fatalf("expected permission classification, got %v", err)
	}

	err = classifyRecorderExit(nil, "")
	if err == nil || !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected fallback error: %v", err)
	}
}

func TestStringsTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := stringsTrimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
