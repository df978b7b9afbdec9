package repository

import (
	"context"

	"leaddesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NewFeeEntry is a charge to append to a lead's ledger.
type NewFeeEntry struct {
	Buckets     domain.FeeBuckets
	Description string
	CreatedBy   *uuid.UUID
}

func (r *Repository) listFeeEntries(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID][]domain.FeeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, government_fee, professional_fee, stamp_fee, other_fee, description, created_by, created_at
		FROM lead_fee_entries
		WHERE lead_id = ANY($1)
		ORDER BY lead_id, position ASC
	`, leadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]domain.FeeEntry)
	for rows.Next() {
		var entry domain.FeeEntry
		var leadID uuid.UUID
		if err := rows.Scan(&entry.ID, &leadID, &entry.Buckets.Government, &entry.Buckets.Professional,
			&entry.Buckets.Stamp, &entry.Buckets.Other, &entry.Description, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result[leadID] = append(result[leadID], entry)
	}
	return result, rows.Err()
}

// AppendFeeEntry adds a charge at the end of the ledger, provided the ledger
// is still at expectedVersion.
func (r *Repository) AppendFeeEntry(ctx context.Context, leadID uuid.UUID, expectedVersion int64, entry NewFeeEntry) (Lead, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET claim_total = claim_total + $3, ledger_version = ledger_version + 1, updated_at = now()
		WHERE id = $1 AND ledger_version = $2
	`, leadID, expectedVersion, entry.Buckets.Total())
	if err != nil {
		return Lead{}, err
	}
	if tag.RowsAffected() == 0 {
		return Lead{}, r.missingOrConflict(ctx, leadID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO lead_fee_entries (lead_id, position, government_fee, professional_fee, stamp_fee, other_fee, description, created_by)
		VALUES ($1, (SELECT COALESCE(MAX(position) + 1, 0) FROM lead_fee_entries WHERE lead_id = $1), $2, $3, $4, $5, $6, $7)
	`, leadID, entry.Buckets.Government, entry.Buckets.Professional, entry.Buckets.Stamp, entry.Buckets.Other,
		entry.Description, entry.CreatedBy)
	if err != nil {
		return Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, err
	}
	return r.GetByID(ctx, leadID)
}

// SaveLedger writes back bucket values for existing entries and recomputes
// claim_total, provided the ledger is still at expectedVersion.
func (r *Repository) SaveLedger(ctx context.Context, leadID uuid.UUID, expectedVersion int64, entries []domain.FeeEntry) (Lead, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET claim_total = $3, ledger_version = ledger_version + 1, updated_at = now()
		WHERE id = $1 AND ledger_version = $2
	`, leadID, expectedVersion, domain.LedgerTotal(entries))
	if err != nil {
		return Lead{}, err
	}
	if tag.RowsAffected() == 0 {
		return Lead{}, r.missingOrConflict(ctx, leadID)
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			UPDATE lead_fee_entries
			SET government_fee = $3, professional_fee = $4, stamp_fee = $5, other_fee = $6
			WHERE id = $1 AND lead_id = $2
		`, entry.ID, leadID, entry.Buckets.Government, entry.Buckets.Professional, entry.Buckets.Stamp, entry.Buckets.Other)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, err
	}
	return r.GetByID(ctx, leadID)
}
