package usecase

import (
	"sync"

	"meetpilot/internal/domain"
	"meetpilot/internal/ports"
)

type activeSession struct {
	cancel func()
	mic    ports.AudioSession
	tab    ports.AudioSession
	mixed  ports.AudioSession
	stream ports.RealtimeSession

	stateMu sync.Mutex
	state   domain.ConnectionState

	pump       pumpResult
	eventsDone chan struct{}
	audioDone  chan struct{}
}

func (s *activeSession) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}
