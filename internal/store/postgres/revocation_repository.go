package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/revocation"
)

// RevocationRepository implements revocation.Repository
type RevocationRepository struct {
	db *DB
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Create stores a revocation
func (r *RevocationRepository) Create(ctx context.Context, rev *revocation.Revocation) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO revocations (tenant_id, subject_id, created_at, expiry_days, active, reason)
		VALUES ($1, $2, COALESCE($3, NOW()), $4, $5, $6)
		RETURNING id, created_at
	`,
		rev.TenantID, rev.SubjectID, nullTime(rev.CreatedAt), rev.ExpiryDays, rev.Active, rev.Reason,
	).Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return storeError("insert revocation", err)
	}
	return nil
}

// ListActive returns active rows for the subject, including elapsed ones
func (r *RevocationRepository) ListActive(ctx context.Context, tenantID, subjectID int64) ([]*revocation.Revocation, error) {
	return r.List(ctx, tenantID, &subjectID, true)
}

// List returns rows for the tenant, newest first
func (r *RevocationRepository) List(ctx context.Context, tenantID int64, subjectID *int64, activeOnly bool) ([]*revocation.Revocation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, subject_id, created_at, expiry_days, active, reason
		FROM revocations
		WHERE tenant_id = $1
			AND ($2::bigint IS NULL OR subject_id = $2)
			AND (NOT $3 OR active)
		ORDER BY id DESC
	`, tenantID, subjectID, activeOnly)
	if err != nil {
		return nil, storeError("list revocations", err)
	}

	revs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*revocation.Revocation, error) {
		var rev revocation.Revocation
		err := row.Scan(&rev.ID, &rev.TenantID, &rev.SubjectID, &rev.CreatedAt, &rev.ExpiryDays, &rev.Active, &rev.Reason)
		return &rev, err
	})
	if err != nil {
		return nil, storeError("scan revocations", err)
	}
	return revs, nil
}

// Deactivate clears every active row for the subject
func (r *RevocationRepository) Deactivate(ctx context.Context, tenantID, subjectID int64) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE revocations SET active = FALSE
		WHERE tenant_id = $1 AND subject_id = $2 AND active
	`, tenantID, subjectID)
	if err != nil {
		return 0, storeError("deactivate revocations", err)
	}
	return result.RowsAffected(), nil
}
