package usecase

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"meetpilot/internal/domain"
	"meetpilot/internal/ports"
)

// transcriptLog is the append-only ordered transcript plus the single
// current-suggestion slot. Items are never mutated or removed; clearing
// the suggestion touches only the slot.
type transcriptLog struct {
	mu      sync.Mutex
	entropy io.Reader

	items      []domain.TranscriptItem
	suggestion *domain.TranscriptItem
	generating bool
}

func newTranscriptLog() *transcriptLog {
	return &transcriptLog{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Append adds one event to the log. Assistant-side items also replace the
// suggestion slot and clear the generating indicator. Returns false for
// blank events, which carry nothing worth logging.
func (l *transcriptLog) Append(event domain.TranscriptEvent) (domain.TranscriptItem, bool) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return domain.TranscriptItem{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	item := domain.TranscriptItem{
		ID:        ulid.MustNew(ulid.Timestamp(now), l.entropy).String(),
		CreatedAt: now,
		Speaker:   event.Speaker,
		Text:      text,
		Final:     event.Final,
	}
	l.items = append(l.items, item)

	if item.Speaker == domain.SpeakerAssistant {
		l.suggestion = &item
		l.generating = false
	}

	return item, true
}

func (l *transcriptLog) Items() []domain.TranscriptItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.TranscriptItem, len(l.items))
	copy(out, l.items)
	return out
}

func (l *transcriptLog) Suggestion() domain.Suggestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suggestionLocked()
}

// MarkGenerating flags that a suggestion has been requested and is pending.
func (l *transcriptLog) MarkGenerating() domain.Suggestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generating = true
	return l.suggestionLocked()
}

// ClearSuggestion empties the slot. The underlying log is untouched.
func (l *transcriptLog) ClearSuggestion() domain.Suggestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suggestion = nil
	l.generating = false
	return l.suggestionLocked()
}

func (l *transcriptLog) suggestionLocked() domain.Suggestion {
	suggestion := domain.Suggestion{Generating: l.generating}
	if l.suggestion != nil {
		suggestion.Text = l.suggestion.Text
	}
	return suggestion
}

// consumeSessionEvents appends inbound transcription events in arrival
// order and mirrors them to the UI.
func consumeSessionEvents(
	session ports.RealtimeSession,
	log *transcriptLog,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	for event := range session.Events() {
		item, ok := log.Append(event)
		if !ok {
			continue
		}
		events.TranscriptAppended(item)
		if item.Speaker == domain.SpeakerAssistant {
			events.SuggestionChanged(log.Suggestion())
		}
	}
}
