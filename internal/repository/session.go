package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibralab/anaterra/internal/entities"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert creates the session on first contact and refreshes updated_at
// afterwards. Existing customer/cpf/context values are never cleared:
// the customer name only fills in when it was previously unknown.
func (r *SessionRepository) Upsert(ctx context.Context, key string, channel entities.Channel, customer string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_session (session_id, channel, customer)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET
		  channel = EXCLUDED.channel,
		  customer = COALESCE(EXCLUDED.customer, chat_session.customer),
		  updated_at = now()
	`, key, string(channel), nullable(customer))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", key, err)
	}
	return nil
}

// Find returns the session, or (nil, nil) when the key is unknown.
func (r *SessionRepository) Find(ctx context.Context, key string) (*entities.Session, error) {
	var (
		s        entities.Session
		channel  string
		customer *string
		cpf      *string
		blob     *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT session_id, channel, customer, cpf, context::text, created_at, updated_at
		FROM chat_session
		WHERE session_id = $1
	`, key).Scan(&s.Key, &channel, &customer, &cpf, &blob, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", key, err)
	}

	ch, err := entities.ParseChannel(channel)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", key, err)
	}
	s.Channel = ch
	s.Customer = deref(customer)
	s.CPF = deref(cpf)
	s.Context = deref(blob)
	return &s, nil
}

// SetCPF records the customer's CPF. The WHERE clause makes the write
// first-wins: a session that already has a CPF is left untouched.
func (r *SessionRepository) SetCPF(ctx context.Context, key, cpf string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_session
		   SET cpf = $1, updated_at = now()
		 WHERE session_id = $2 AND cpf IS NULL
	`, cpf, key)
	if err != nil {
		return fmt.Errorf("set cpf for session %s: %w", key, err)
	}
	return nil
}

// SetContext replaces the session's free-form context blob.
func (r *SessionRepository) SetContext(ctx context.Context, key, contextJSON string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_session
		   SET context = $1::jsonb, updated_at = now()
		 WHERE session_id = $2
	`, nullable(contextJSON), key)
	if err != nil {
		return fmt.Errorf("set context for session %s: %w", key, err)
	}
	return nil
}

// Delete removes a session. Administrative only; the conversation engine
// never deletes sessions.
func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chat_session WHERE session_id = $1`, key)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
