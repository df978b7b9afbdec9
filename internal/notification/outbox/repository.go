package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusEnqueued       Status = "enqueued"
	StatusProcessing     Status = "processing"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	errRepoNotConfigured        = "outbox repository not configured"
)

type Record struct {
	ID       uuid.UUID
	AgentID  uuid.UUID
	Kind     string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

type InsertParams struct {
	AgentID uuid.UUID
	Kind    string
	Payload any
	RunAt   time.Time
}

// Store is the outbox persistence used by the notification module and the
// scheduler.
type Store interface {
	Insert(ctx context.Context, p InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (Record, error)
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// ValidateInsert checks p and fills defaults.
func ValidateInsert(p *InsertParams) error {
	if p.AgentID == uuid.Nil {
		return fmt.Errorf("agentId is required")
	}
	if p.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}
	return nil
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if err := ValidateInsert(&p); err != nil {
		return uuid.Nil, err
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notification_outbox (agent_id, kind, payload, run_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		p.AgentID, p.Kind, payloadBytes, p.RunAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}

	var rec Record
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, agent_id, kind, payload, run_at, status, attempts
		 FROM notification_outbox
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.AgentID, &rec.Kind, &rec.Payload, &rec.RunAt, &status, &rec.Attempts)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// ClaimPending moves up to limit due records to enqueued and returns them.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM notification_outbox
		WHERE status = 'pending' AND run_at <= now()
		ORDER BY run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_outbox o
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.agent_id, o.kind, o.payload, o.run_at, o.status, o.attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Kind, &rec.Payload, &rec.RunAt, &status, &rec.Attempts); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.exec(ctx, `UPDATE notification_outbox
		 SET status = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1`, id, lastError)
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE notification_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`, id)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE notification_outbox
		 SET status = 'succeeded', last_error = NULL, updated_at = now()
		 WHERE id = $1`, id)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, `UPDATE notification_outbox
		 SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`, id, lastError)
}

// ScheduleRetry returns the record to pending with a later run_at.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.exec(ctx, `UPDATE notification_outbox
		 SET status = 'pending', run_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`, id, runAt, lastError)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}
