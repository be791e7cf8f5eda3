package brainstorm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSession(id string) *Session {
	return &Session{
		ID:        id,
		UserID:    "user-1",
		Topic:     "Remote work",
		Status:    StatusActive,
		Settings:  Settings{MaxTurns: 4, Format: FormatBrainstorm},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1")); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	got.Messages = append(got.Messages, Message{ID: "m1", Speaker: SpeakerUser})

	again, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(again.Messages) != 0 {
		t.Fatalf("mutating a returned session leaked into the store: %d messages", len(again.Messages))
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, newTestSession("s1"))

	_, err := store.Update(ctx, "s1", func(s *Session) error {
		s.Status = StatusPaused
		return ErrSessionNotActive
	})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.Status != StatusActive {
		t.Fatalf("failed update must not be written, status=%s", got.Status)
	}
}

func TestMemoryStoreUpdateCommits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, newTestSession("s1"))

	updated, err := store.Update(ctx, "s1", func(s *Session) error {
		s.CurrentTurn++
		return nil
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}
	if updated.CurrentTurn != 1 {
		t.Fatalf("expected currentTurn 1, got %d", updated.CurrentTurn)
	}
	if updated.UpdatedAt.IsZero() {
		t.Fatal("expected updatedAt to be stamped")
	}
}

func TestNextSpeakerAlternatesAcrossUserTurns(t *testing.T) {
	s := newTestSession("s1")
	if got := s.NextSpeaker(); got != SpeakerA {
		t.Fatalf("expected A to open, got %s", got)
	}

	s.Messages = []Message{
		{Speaker: SpeakerUser},
		{Speaker: SpeakerA},
		{Speaker: SpeakerUser},
	}
	if got := s.NextSpeaker(); got != SpeakerB {
		t.Fatalf("expected B after A with interleaved user turn, got %s", got)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Errorf(ErrSessionNotActive, "session %s is paused", "s1")
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatal("expected errors.Is to match on code")
	}
	if errors.Is(err, ErrSessionNotPaused) {
		t.Fatal("different codes must not match")
	}
}

func TestPresetForUnknownFormatFallsBack(t *testing.T) {
	preset := PresetFor(Format("unknown"))
	if preset.Format != FormatBrainstorm {
		t.Fatalf("expected brainstorm fallback, got %s", preset.Format)
	}
	if preset.A.Name == "" || preset.B.Name == "" {
		t.Fatal("preset participants must be named")
	}
}
