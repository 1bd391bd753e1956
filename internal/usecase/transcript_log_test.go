package usecase

import (
	"testing"

	"meetpilot/internal/domain"
)

func TestTranscriptLogPreservesArrivalOrder(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "hello", Final: true})
	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerAssistant, Text: "hi there", Final: true})
	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "how are you", Final: false})

	items := log.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []string{"hello", "hi there", "how are you"}
	for i, text := range want {
		if items[i].Text != text {
			t.Fatalf("unexpected order at %d: %q", i, items[i].Text)
		}
	}
	if items[2].Final {
		t.Fatalf("expected third item to be partial")
	}
}

func TestTranscriptLogSuggestionSlotHoldsLatestAssistantItem(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerAssistant, Text: "hi there", Final: true})
	if got := log.Suggestion().Text; got != "hi there" {
		t.Fatalf("unexpected suggestion: %q", got)
	}

	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "ok", Final: true})
	if got := log.Suggestion().Text; got != "hi there" {
		t.Fatalf("captured items must not replace the slot, got %q", got)
	}

	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerAssistant, Text: "I'm good", Final: true})
	if got := log.Suggestion().Text; got != "I'm good" {
		t.Fatalf("expected slot replaced wholesale, got %q", got)
	}
	if got := len(log.Items()); got != 3 {
		t.Fatalf("expected all items kept in the log, got %d", got)
	}
}

func TestTranscriptLogGeneratingClearedByAssistantItem(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	if suggestion := log.MarkGenerating(); !suggestion.Generating {
		t.Fatalf("expected generating flag set")
	}

	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerAssistant, Text: "try this", Final: true})
	suggestion := log.Suggestion()
	if suggestion.Generating {
		t.Fatalf("expected generating flag cleared by assistant item")
	}
	if suggestion.Text != "try this" {
		t.Fatalf("unexpected suggestion text: %q", suggestion.Text)
	}
}

func TestTranscriptLogClearSuggestionKeepsLog(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerAssistant, Text: "say hi", Final: true})

	suggestion := log.ClearSuggestion()
	if suggestion.Text != "" || suggestion.Generating {
		t.Fatalf("expected empty slot after clear, got %+v", suggestion)
	}
	if got := len(log.Items()); got != 1 {
		t.Fatalf("clear must not touch the log, got %d items", got)
	}
}

func TestTranscriptLogSkipsBlankEvents(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	if _, ok := log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "   "}); ok {
		t.Fatalf("expected blank event to be skipped")
	}
	if got := len(log.Items()); got != 0 {
		t.Fatalf("expected empty log, got %d items", got)
	}
}

func TestTranscriptLogIDsSortByArrival(t *testing.T) {
	t.Parallel()

	log := newTranscriptLog()
	first, _ := log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "a", Final: true})
	second, _ := log.Append(domain.TranscriptEvent{Speaker: domain.SpeakerCaptured, Text: "b", Final: true})
	if first.ID >= second.ID {
		t.Fatalf("expected lexicographically increasing ids, got %q then %q", first.ID, second.ID)
	}
}
