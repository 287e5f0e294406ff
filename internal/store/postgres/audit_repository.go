package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/audit"
)

// AuditRepository implements audit.Repository
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an entry
func (r *AuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO audit_entries (
			request_id, created_at, origin, identifier, success,
			subject_id, account_id, tenant_id, details, rate_limit_eligible
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		entry.RequestID, entry.Timestamp, entry.Origin, entry.Identifier, entry.Success,
		entry.SubjectID, entry.AccountID, entry.TenantID, entry.Details, entry.RateLimitEligible,
	).Scan(&entry.ID)
	if err != nil {
		return storeError("insert audit entry", err)
	}
	return nil
}

// Query returns matching entries, newest first
func (r *AuditRepository) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != nil {
		add("tenant_id = $%d", *filter.TenantID)
	}
	if filter.SubjectID != nil {
		add("subject_id = $%d", *filter.SubjectID)
	}
	if filter.Identifier != "" {
		add("identifier = $%d", filter.Identifier)
	} else if !filter.IncludeListing {
		add("identifier <> $%d", audit.ListingIdentifier)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}
	if filter.Origin != "" {
		add("origin = $%d", filter.Origin)
	}

	query := `
		SELECT id, request_id::text, created_at, origin, identifier, success,
			subject_id, account_id, tenant_id, details, rate_limit_eligible
		FROM audit_entries`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf("\n\t\tORDER BY created_at DESC, id DESC\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("query audit entries", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*audit.Entry, error) {
		var e audit.Entry
		err := row.Scan(
			&e.ID, &e.RequestID, &e.Timestamp, &e.Origin, &e.Identifier, &e.Success,
			&e.SubjectID, &e.AccountID, &e.TenantID, &e.Details, &e.RateLimitEligible,
		)
		return &e, err
	})
	if err != nil {
		return nil, storeError("scan audit entries", err)
	}
	return entries, nil
}

// CountFailures counts eligible failures from origin since a point in time
func (r *AuditRepository) CountFailures(ctx context.Context, origin string, since time.Time) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM audit_entries
		WHERE origin = $1 AND NOT success AND rate_limit_eligible AND created_at >= $2
	`, origin, since).Scan(&n)
	if err != nil {
		return 0, storeError("count failures", err)
	}
	return n, nil
}

// Acknowledge makes every eligible failure from origin ineligible
func (r *AuditRepository) Acknowledge(ctx context.Context, origin string) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE audit_entries SET rate_limit_eligible = FALSE
		WHERE origin = $1 AND NOT success AND rate_limit_eligible
	`, origin)
	if err != nil {
		return 0, storeError("acknowledge failures", err)
	}
	return result.RowsAffected(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
