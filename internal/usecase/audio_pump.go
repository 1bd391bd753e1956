package usecase

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"meetpilot/internal/domain"
	"meetpilot/internal/ports"
)

type pumpResult struct {
	mu  sync.Mutex
	err error
}

func (r *pumpResult) set(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *pumpResult) get() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// pumpAudioFrames reads fixed frames from the mixed stream and forwards
// them to the session. Frames are fire-and-forget: a send failure is
// reported once, never retried per frame.
func pumpAudioFrames(
	mixed ports.AudioSession,
	session ports.RealtimeSession,
	frameSize int,
	events ports.EventSink,
	result *pumpResult,
	done chan struct{},
) {
	defer close(done)

	if frameSize < 256 {
		frameSize = 3200
	}

	buf := make([]byte, frameSize)
	for {
		n, err := mixed.Read(buf)
		if n > 0 {
			if sendErr := session.SendAudio(buf[:n]); sendErr != nil {
				events.SessionError(domain.ErrorCodeTransport, fmt.Sprintf("failed to stream audio: %v", sendErr))
				result.set(sendErr)
				return
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, ports.ErrShareEnded):
				// The platform side revoked sharing. Not an error: the
				// controller tears down the same way as an explicit stop.
			case errors.Is(err, io.EOF):
				// Mixed stream stopped locally during teardown.
			default:
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			result.set(err)
			return
		}
	}
}

func waitForSession(session ports.RealtimeSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
