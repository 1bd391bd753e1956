package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"meetpilot/internal/ports"
)

// mixFrameBytes is 100ms of 16 kHz mono 16-bit PCM.
const mixFrameBytes = 3200

// Mixer sums two gain-controlled PCM paths into one derived stream.
// The mixed session owns only its own machinery: stopping it does not
// stop the source sessions it reads from.
type Mixer struct {
	micGain float64
	tabGain float64
}

func NewMixer(micGain float64, tabGain float64) *Mixer {
	if micGain < 0 {
		micGain = 1.0
	}
	if tabGain < 0 {
		tabGain = 1.0
	}
	return &Mixer{micGain: micGain, tabGain: tabGain}
}

func (m *Mixer) Mix(mic ports.AudioSession, tab ports.AudioSession) (ports.AudioSession, error) {
	if mic == nil || tab == nil {
		return nil, errors.New("mixer requires both a microphone and a shared-audio source")
	}

	session := &mixedSession{
		micFeed: make(chan feedChunk, 4),
		tabFeed: make(chan feedChunk, 4),
		stopped: make(chan struct{}),
		micGain: m.micGain,
		tabGain: m.tabGain,
	}

	go pumpSource(mic, session.micFeed, ports.ErrMicEnded, session.stopped)
	go pumpSource(tab, session.tabFeed, ports.ErrShareEnded, session.stopped)

	return session, nil
}

type feedChunk struct {
	data []byte
	err  error
}

// pumpSource reads fixed frames from one source until it ends. The end
// condition is reported downstream as the given sentinel so the caller
// can tell a revoked share from a dead microphone.
func pumpSource(src ports.AudioSession, feed chan<- feedChunk, ended error, stopped <-chan struct{}) {
	defer close(feed)

	deliver := func(chunk feedChunk) bool {
		select {
		case feed <- chunk:
			return true
		case <-stopped:
			return false
		}
	}

	for {
		buf := make([]byte, mixFrameBytes)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if !deliver(feedChunk{data: buf[:n]}) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				deliver(feedChunk{err: ended})
			} else {
				deliver(feedChunk{err: fmt.Errorf("%w: %v", ended, err)})
			}
			return
		}
	}
}

type mixedSession struct {
	micFeed chan feedChunk
	tabFeed chan feedChunk
	micGain float64
	tabGain float64

	pending []byte

	stopOnce sync.Once
	stopped  chan struct{}
}

func (s *mixedSession) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		mic, ok := s.next(s.micFeed)
		if !ok {
			return 0, io.EOF
		}
		if mic.err != nil {
			return 0, mic.err
		}
		tab, ok := s.next(s.tabFeed)
		if !ok {
			return 0, io.EOF
		}
		if tab.err != nil {
			return 0, tab.err
		}
		s.pending = sumPCM(mic.data, tab.data, s.micGain, s.tabGain)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *mixedSession) next(feed chan feedChunk) (feedChunk, bool) {
	select {
	case <-s.stopped:
		return feedChunk{}, false
	case chunk, ok := <-feed:
		if !ok {
			return feedChunk{}, false
		}
		return chunk, true
	}
}

func (s *mixedSession) Close() error {
	return s.Stop()
}

func (s *mixedSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
	return nil
}

// sumPCM mixes two 16-bit little-endian streams sample by sample. The
// shorter side is padded with silence; sums are clamped to int16 range.
func sumPCM(a []byte, b []byte, gainA float64, gainB float64) []byte {
	length := len(a)
	if len(b) > length {
		length = len(b)
	}
	// keep whole samples
	length -= length % 2

	out := make([]byte, length)
	for i := 0; i+1 < length; i += 2 {
		var sa, sb int16
		if i+1 < len(a) {
			sa = int16(binary.LittleEndian.Uint16(a[i:]))
		}
		if i+1 < len(b) {
			sb = int16(binary.LittleEndian.Uint16(b[i:]))
		}

		sum := int32(float64(sa)*gainA + float64(sb)*gainB)
		if sum > 32767 {
			sum = 32767
		}
		if sum < -32768 {
			sum = -32768
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(sum)))
	}
	return out
}
