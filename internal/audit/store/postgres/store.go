package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"comitia/internal/audit"
	txcontext "comitia/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the same transaction as the
// state change they describe, so a failed append rolls the whole mutation
// back. The relay worker drains the outbox to Kafka.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// payload is the JSON structure relayed to Kafka. Field names match
// audit.Event so the consumer deserializes without a mapping layer.
type payload struct {
	ID            string            `json:"ID"`
	Category      string            `json:"Category"`
	Timestamp     string            `json:"Timestamp"`
	Action        string            `json:"Action"`
	Description   string            `json:"Description"`
	ActorID       string            `json:"ActorID,omitempty"`
	SubjectID     string            `json:"SubjectID,omitempty"`
	ElectionID    string            `json:"ElectionID,omitempty"`
	ApplicationID string            `json:"ApplicationID,omitempty"`
	Metadata      map[string]string `json:"Metadata,omitempty"`
	ClientIP      string            `json:"ClientIP,omitempty"`
	UserAgent     string            `json:"UserAgent,omitempty"`
	RequestID     string            `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// The actionCategories map is the source of truth, whatever the caller set.
	category := event.Action.Category()

	p := payload{
		ID:          eventID.String(),
		Category:    string(category),
		Timestamp:   event.Timestamp.Format(time.RFC3339Nano),
		Action:      string(event.Action),
		Description: event.Description,
		Metadata:    event.Metadata,
		ClientIP:    event.ClientIP,
		UserAgent:   event.UserAgent,
		RequestID:   event.RequestID,
	}
	if !event.ActorID.IsNil() {
		p.ActorID = event.ActorID.String()
	}
	if !event.SubjectID.IsNil() {
		p.SubjectID = event.SubjectID.String()
	}
	if !event.ElectionID.IsNil() {
		p.ElectionID = event.ElectionID.String()
	}
	if !event.ApplicationID.IsNil() {
		p.ApplicationID = event.ApplicationID.String()
	}

	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	// Aggregate the event under the election when one is referenced,
	// otherwise under the subject user.
	aggregateType := "audit"
	aggregateID := eventID.String()
	switch {
	case !event.ElectionID.IsNil():
		aggregateType = "election"
		aggregateID = event.ElectionID.String()
	case !event.SubjectID.IsNil():
		aggregateType = "user"
		aggregateID = event.SubjectID.String()
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		string(event.Action),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert audit outbox entry: %w", err)
	}
	return nil
}

// Entry is one undelivered outbox row.
type Entry struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
}

// NextBatch returns up to limit undelivered entries in insertion order.
// Delivery is at-least-once: concurrent relay instances may pick up the
// same batch, and the downstream consumer deduplicates by event ID.
func (s *Store) NextBatch(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload
		FROM audit_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", err)
	}
	defer rows.Close()

	var batch []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		batch = append(batch, e)
	}
	return batch, rows.Err()
}

// MarkDelivered stamps entries as relayed. Rows are kept, not deleted; the
// outbox doubles as the local audit trail.
func (s *Store) MarkDelivered(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	query := `UPDATE audit_outbox SET delivered_at = $1 WHERE id IN (`
	for i, entryID := range ids {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("$%d", i+2)
		args = append(args, entryID)
	}
	query += ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark outbox entries delivered: %w", err)
	}
	return nil
}
