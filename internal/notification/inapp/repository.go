package inapp

import (
	"context"
	"fmt"
	"time"

	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"

	errRepoNotConfigured = "in-app notification repository not configured"
	errAgentIDRequired   = "agentId is required"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agentId"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateParams struct {
	AgentID uuid.UUID
	Kind    string
	Title   string
	Content string
}

// Store is the inbox persistence shared by the postgres and memory drivers.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, agentID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, agentID, notificationID uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// ValidateCreate rejects incomplete notifications.
func ValidateCreate(p CreateParams) error {
	if p.AgentID == uuid.Nil {
		return apperr.Validation(errAgentIDRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return apperr.Validation("title and content are required").WithOp(opCreate)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if err := ValidateCreate(p); err != nil {
		return Notification{}, err
	}

	var n Notification
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agent_notifications (agent_id, kind, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, agent_id, kind, title, content, is_read, created_at
	`, p.AgentID, p.Kind, p.Title, p.Content).Scan(
		&n.ID, &n.AgentID, &n.Kind, &n.Title, &n.Content, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, apperr.Persistence("create in-app notification failed", err).WithOp(opCreate)
	}

	return n, nil
}

func (r *Repository) List(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if agentID == uuid.Nil {
		return nil, 0, apperr.Validation(errAgentIDRequired).WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agent_notifications WHERE agent_id = $1`, agentID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, kind, title, content, is_read, created_at
		FROM agent_notifications
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.AgentID, &n.Kind, &n.Title, &n.Content, &n.IsRead, &n.CreatedAt); scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, agentID uuid.UUID) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}
	if agentID == uuid.Nil {
		return 0, apperr.Validation(errAgentIDRequired).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM agent_notifications
		WHERE agent_id = $1 AND is_read = FALSE
	`, agentID).Scan(&count)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread notifications failed: %v", err)).WithOp(opCountUnread)
	}

	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, agentID, notificationID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if agentID == uuid.Nil || notificationID == uuid.Nil {
		return apperr.Validation("agentId and notificationId are required").WithOp(opMarkRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE agent_notifications
		SET is_read = TRUE
		WHERE id = $1 AND agent_id = $2
	`, notificationID, agentID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}

	return nil
}
