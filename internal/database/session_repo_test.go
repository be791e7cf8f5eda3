package database

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

var _ brainstorm.Store = (*SessionRepository)(nil)

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations err: %v", err)
	}
	for _, name := range []string{
		"000001_create_brainstorm_sessions.up.sql",
		"000001_create_brainstorm_sessions.down.sql",
	} {
		if _, err := fs.Stat(migrations, name); err != nil {
			t.Fatalf("missing migration %s: %v", name, err)
		}
	}
}

func TestSessionDocumentCodec(t *testing.T) {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	session := &brainstorm.Session{
		ID:     "s1",
		Topic:  "Remote work",
		Status: brainstorm.StatusPaused,
		Messages: []brainstorm.Message{
			{ID: "m1", Speaker: brainstorm.SpeakerUser, Content: "Remote work", Attachments: []brainstorm.Attachment{{Name: "a.pdf", Size: 42}}},
		},
		CreatedAt: created,
	}

	doc, err := encodeSession(session)
	if err != nil {
		t.Fatalf("encode err: %v", err)
	}
	decoded, err := decodeSession(doc)
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if decoded.Status != brainstorm.StatusPaused || decoded.Messages[0].Attachments[0].Size != 42 {
		t.Fatalf("unexpected decoded session %+v", decoded)
	}
	if !decoded.CreatedAt.Equal(created) {
		t.Fatalf("createdAt drifted: %v", decoded.CreatedAt)
	}
	if got := updatedAt(session); !got.Equal(created) {
		t.Fatalf("expected createdAt fallback, got %v", got)
	}

	empty, err := decodeSession([]byte(`{"id":"s2"}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if empty.Messages == nil {
		t.Fatal("messages should decode as an empty list")
	}
}

// TestSessionRepositoryPostgres runs against a real database when
// TEST_DATABASE_URL is set.
func TestSessionRepositoryPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations err: %v", err)
	}
	if err := RunMigrations(url, migrations); err != nil {
		t.Fatalf("RunMigrations err: %v", err)
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, url, PoolConfig{MaxConns: 4})
	if err != nil {
		t.Fatalf("NewPool err: %v", err)
	}
	defer pool.Close()

	repo := NewSessionRepository(pool)
	session := &brainstorm.Session{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Topic:     "Remote work",
		Status:    brainstorm.StatusActive,
		Messages:  []brainstorm.Message{},
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	_, err = repo.Update(ctx, session.ID, func(s *brainstorm.Session) error {
		s.Messages = append(s.Messages, brainstorm.Message{ID: "m1", Speaker: brainstorm.SpeakerA, Content: "idea"})
		return brainstorm.ErrSessionNotActive
	})
	if !errors.Is(err, brainstorm.ErrSessionNotActive) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}

	updated, err := repo.Update(ctx, session.ID, func(s *brainstorm.Session) error {
		s.CurrentTurn++
		s.Status = brainstorm.StatusPaused
		return nil
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}
	if updated.CurrentTurn != 1 {
		t.Fatalf("unexpected updated session %+v", updated)
	}

	got, err := repo.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Status != brainstorm.StatusPaused || len(got.Messages) != 0 {
		t.Fatalf("rolled back update leaked: %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, brainstorm.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
