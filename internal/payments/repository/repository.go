package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leaddesk_backend/internal/payments/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrStatusChanged is returned when a conditional transition found the
	// payment in a different status than expected.
	ErrStatusChanged = errors.New("payment status changed")
)

type CreateParams struct {
	Amount     decimal.Decimal
	Method     domain.Method
	Reference  string
	ReceiptURL string
	LeadID     *uuid.UUID
	ParentID   *uuid.UUID
	CreatedBy  *uuid.UUID
}

// ClaimParams moves a pending payment to claimed.
type ClaimParams struct {
	PaymentID     uuid.UUID
	LeadID        uuid.UUID
	AgentID       uuid.UUID
	ClaimedAmount decimal.Decimal
	ClaimedAt     time.Time
}

// SettleParams rewrites the amount of a claim still held by AgentID.
type SettleParams struct {
	PaymentID     uuid.UUID
	AgentID       uuid.UUID
	ClaimedAmount decimal.Decimal
}

// ReleaseParams hands a claim held by AgentID back to pending. LeadID is the
// binding the payment had before it was claimed.
type ReleaseParams struct {
	PaymentID uuid.UUID
	AgentID   uuid.UUID
	LeadID    *uuid.UUID
}

// ReviewParams moves a claimed payment to verified or rejected.
type ReviewParams struct {
	PaymentID  uuid.UUID
	To         domain.Status
	ReviewerID uuid.UUID
	Notes      string
	ReviewedAt time.Time
}

type ListParams struct {
	Status    *domain.Status
	LeadID    *uuid.UUID
	ClaimedBy *uuid.UUID
	Offset    int
	Limit     int
}

type PaymentsRepository interface {
	Create(ctx context.Context, params CreateParams) (domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	List(ctx context.Context, params ListParams) ([]domain.Payment, int, error)
	ClaimIfPending(ctx context.Context, params ClaimParams) (domain.Payment, error)
	SettleClaim(ctx context.Context, params SettleParams) (domain.Payment, error)
	ReleaseClaim(ctx context.Context, params ReleaseParams) (domain.Payment, error)
	ReviewIfClaimed(ctx context.Context, params ReviewParams) (domain.Payment, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ PaymentsRepository = (*Repository)(nil)

const paymentColumns = `id, amount, method, reference, receipt_url, lead_id, status, claimed_by, claimed_amount, claimed_at,
	reviewed_by, reviewed_at, review_notes, parent_id, created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	var method, status string
	var claimedAmount decimal.NullDecimal
	err := row.Scan(&p.ID, &p.Amount, &method, &p.Reference, &p.ReceiptURL, &p.LeadID, &status, &p.ClaimedBy,
		&claimedAmount, &p.ClaimedAt, &p.ReviewedBy, &p.ReviewedAt, &p.ReviewNotes, &p.ParentID, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	p.Method = domain.Method(method)
	p.Status = domain.Status(status)
	if claimedAmount.Valid {
		p.ClaimedAmount = claimedAmount.Decimal
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		INSERT INTO pending_payments (amount, method, reference, receipt_url, lead_id, parent_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+paymentColumns,
		params.Amount, string(params.Method), params.Reference, params.ReceiptURL, params.LeadID, params.ParentID, params.CreatedBy,
	))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM pending_payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Payment, int, error) {
	clauses := []string{"1 = 1"}
	args := []interface{}{}
	argIdx := 1

	if params.Status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.LeadID != nil {
		clauses = append(clauses, fmt.Sprintf("lead_id = $%d", argIdx))
		args = append(args, *params.LeadID)
		argIdx++
	}
	if params.ClaimedBy != nil {
		clauses = append(clauses, fmt.Sprintf("claimed_by = $%d", argIdx))
		args = append(args, *params.ClaimedBy)
		argIdx++
	}
	whereClause := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pending_payments WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, params.Offset)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM pending_payments WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, paymentColumns, whereClause, argIdx, argIdx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// ClaimIfPending claims the payment only while it is still pending and not
// bound to another lead.
func (r *Repository) ClaimIfPending(ctx context.Context, params ClaimParams) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE pending_payments
		SET status = 'claimed', claimed_by = $2, claimed_amount = $3, claimed_at = $4,
			lead_id = COALESCE(lead_id, $5), updated_at = now()
		WHERE id = $1 AND status = 'pending' AND (lead_id IS NULL OR lead_id = $5)
		RETURNING `+paymentColumns,
		params.PaymentID, params.AgentID, params.ClaimedAmount, params.ClaimedAt, params.LeadID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, r.missingOrChanged(ctx, params.PaymentID)
	}
	return p, err
}

// SettleClaim lowers or raises the claimed amount while the claim is still
// unreviewed and held by the same agent.
func (r *Repository) SettleClaim(ctx context.Context, params SettleParams) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE pending_payments
		SET claimed_amount = $3, updated_at = now()
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2
		RETURNING `+paymentColumns,
		params.PaymentID, params.AgentID, params.ClaimedAmount,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, r.missingOrChanged(ctx, params.PaymentID)
	}
	return p, err
}

// ReleaseClaim returns an unreviewed claim to pending and restores the
// payment's original lead binding.
func (r *Repository) ReleaseClaim(ctx context.Context, params ReleaseParams) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE pending_payments
		SET status = 'pending', claimed_by = NULL, claimed_amount = NULL, claimed_at = NULL,
			lead_id = $3, updated_at = now()
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2
		RETURNING `+paymentColumns,
		params.PaymentID, params.AgentID, params.LeadID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, r.missingOrChanged(ctx, params.PaymentID)
	}
	return p, err
}

// ReviewIfClaimed records the review decision only while the payment is claimed.
func (r *Repository) ReviewIfClaimed(ctx context.Context, params ReviewParams) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE pending_payments
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, updated_at = now()
		WHERE id = $1 AND status = 'claimed'
		RETURNING `+paymentColumns,
		params.PaymentID, string(params.To), params.ReviewerID, params.ReviewedAt, params.Notes,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, r.missingOrChanged(ctx, params.PaymentID)
	}
	return p, err
}

func (r *Repository) missingOrChanged(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pending_payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusChanged
}
