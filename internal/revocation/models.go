package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/opentrusty/ssoproxy/internal/errs"
)

// Domain errors
var (
	ErrRevocationNotFound = errs.New(errs.NotFound, "no active revocation")
	ErrInvalidExpiry      = errors.New("expiry days must not be negative")
)

// Permanent is the expiry of a revocation that never lapses
const Permanent = 0

// Revocation denies a subject access within a tenant
type Revocation struct {
	ID         int64
	TenantID   int64
	SubjectID  int64
	CreatedAt  time.Time
	ExpiryDays int
	Active     bool
	Reason     string
}

// InEffect reports whether the revocation denies access at now. Elapsed rows
// stay active in storage and simply stop applying.
func (r *Revocation) InEffect(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ExpiryDays == Permanent {
		return true
	}
	return now.Before(r.ExpiresAt())
}

// ExpiresAt returns the end of the revocation window, zero when permanent
func (r *Revocation) ExpiresAt() time.Time {
	if r.ExpiryDays == Permanent {
		return time.Time{}
	}
	return r.CreatedAt.Add(time.Duration(r.ExpiryDays) * 24 * time.Hour)
}

// Repository defines persistence for revocations
type Repository interface {
	Create(ctx context.Context, r *Revocation) error

	// ListActive returns active rows for the subject, including elapsed ones
	ListActive(ctx context.Context, tenantID, subjectID int64) ([]*Revocation, error)

	// List returns rows for the tenant; subjectID nil means every subject
	List(ctx context.Context, tenantID int64, subjectID *int64, activeOnly bool) ([]*Revocation, error)

	// Deactivate sets active=false on every row for the subject
	Deactivate(ctx context.Context, tenantID, subjectID int64) (int64, error)
}
