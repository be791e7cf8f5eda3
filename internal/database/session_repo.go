package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// SessionRepository stores each session as one JSONB document. status,
// chat_id and user_id are mirrored into columns for lookups.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a repository on top of pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session document.
func (r *SessionRepository) Create(ctx context.Context, session *brainstorm.Session) error {
	if session == nil || session.ID == "" {
		return brainstorm.ErrInvalidRequest
	}

	doc, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO brainstorm_sessions (id, chat_id, user_id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.ChatID,
		session.UserID,
		string(session.Status),
		doc,
		session.CreatedAt,
		updatedAt(session),
	)
	if err != nil {
		return fmt.Errorf("failed to create brainstorm session: %w", err)
	}
	return nil
}

// Get loads a session document.
func (r *SessionRepository) Get(ctx context.Context, id string) (*brainstorm.Session, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT document FROM brainstorm_sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, brainstorm.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load brainstorm session: %w", err)
	}
	return decodeSession(doc)
}

// Update locks the row, applies fn and writes the document back in one
// transaction. An error from fn rolls the transaction back.
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(*brainstorm.Session) error) (*brainstorm.Session, error) {
	var updated *brainstorm.Session

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx, `SELECT document FROM brainstorm_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return brainstorm.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock brainstorm session: %w", err)
		}

		session, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		session.UpdatedAt = time.Now().UTC()

		next, err := encodeSession(session)
		if err != nil {
			return err
		}
		query := `
			UPDATE brainstorm_sessions
			SET status = $2, document = $3, updated_at = $4
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, query, id, string(session.Status), next, session.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update brainstorm session: %w", err)
		}

		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func encodeSession(session *brainstorm.Session) ([]byte, error) {
	doc, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session document: %w", err)
	}
	return doc, nil
}

func decodeSession(doc []byte) (*brainstorm.Session, error) {
	var session brainstorm.Session
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []brainstorm.Message{}
	}
	return &session, nil
}

func updatedAt(session *brainstorm.Session) time.Time {
	if session.UpdatedAt.IsZero() {
		return session.CreatedAt
	}
	return session.UpdatedAt
}
