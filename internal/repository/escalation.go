package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibralab/anaterra/internal/entities"
)

type EscalationRepository struct {
	db *pgxpool.Pool
}

func NewEscalationRepository(db *pgxpool.Pool) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Open records a pending human-handoff ticket.
func (r *EscalationRepository) Open(ctx context.Context, t entities.EscalationTicket) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_escalation (session_key, cpf, channel, reason, last_message)
		VALUES ($1, $2, $3, $4, $5)
	`, t.SessionKey, nullable(t.CPF), string(t.Channel), nullable(t.Reason), t.LastMessage)
	if err != nil {
		return fmt.Errorf("open escalation for session %s: %w", t.SessionKey, err)
	}
	return nil
}

// ListPending returns unresolved tickets, newest first.
func (r *EscalationRepository) ListPending(ctx context.Context) ([]entities.EscalationTicket, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_key, cpf, channel, reason, last_message, resolved, created_at
		FROM chat_escalation
		WHERE resolved = false
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending escalations: %w", err)
	}
	defer rows.Close()

	var tickets []entities.EscalationTicket
	for rows.Next() {
		var (
			t       entities.EscalationTicket
			cpf     *string
			channel string
			reason  *string
		)
		if err := rows.Scan(&t.ID, &t.SessionKey, &cpf, &channel, &reason, &t.LastMessage, &t.Resolved, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		ch, err := entities.ParseChannel(channel)
		if err != nil {
			return nil, err
		}
		t.Channel = ch
		t.CPF = deref(cpf)
		t.Reason = deref(reason)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Resolve closes a ticket. Resolved tickets are never reopened here.
func (r *EscalationRepository) Resolve(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_escalation SET resolved = true WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("resolve escalation %d: %w", id, err)
	}
	return nil
}
