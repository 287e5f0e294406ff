package memory

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/revocation"
)

// KeyRepository implements accesskey.Repository
type KeyRepository struct{ s *Store }

// Create stores a new key
func (r *KeyRepository) Create(ctx context.Context, key *accesskey.AccessKey) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for _, k := range r.s.keys {
		if k.TenantID == key.TenantID && k.SubjectID == key.SubjectID {
			return accesskey.ErrKeyExists
		}
		if k.SecretHash == key.SecretHash {
			return accesskey.ErrSecretCollision
		}
	}
	key.ID = r.s.id()
	key.CreatedAt = now()
	r.s.keys[key.ID] = storedKey(key)
	return nil
}

// GetBySubject retrieves the subject's key
func (r *KeyRepository) GetBySubject(ctx context.Context, tenantID, subjectID int64) (*accesskey.AccessKey, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, k := range r.s.keys {
		if k.TenantID == tenantID && k.SubjectID == subjectID {
			return storedKey(k), nil
		}
	}
	return nil, accesskey.ErrKeyNotFound
}

// GetByHash retrieves the key holding a secret hash
func (r *KeyRepository) GetByHash(ctx context.Context, secretHash string) (*accesskey.AccessKey, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, k := range r.s.keys {
		if k.SecretHash == secretHash {
			return storedKey(k), nil
		}
	}
	return nil, accesskey.ErrKeyNotFound
}

// UpdateSecret replaces the secret of an existing key
func (r *KeyRepository) UpdateSecret(ctx context.Context, key *accesskey.AccessKey) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	var target *accesskey.AccessKey
	for _, k := range r.s.keys {
		if k.TenantID == key.TenantID && k.SubjectID == key.SubjectID {
			target = k
			continue
		}
		if k.SecretHash == key.SecretHash {
			return accesskey.ErrSecretCollision
		}
	}
	if target == nil {
		return accesskey.ErrKeyNotFound
	}
	target.SecretHash = key.SecretHash
	target.SecretEncrypted = cloneBytes(key.SecretEncrypted)
	return nil
}

// Delete removes the subject's key
func (r *KeyRepository) Delete(ctx context.Context, tenantID, subjectID int64) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for id, k := range r.s.keys {
		if k.TenantID == tenantID && k.SubjectID == subjectID {
			delete(r.s.keys, id)
			return nil
		}
	}
	return accesskey.ErrKeyNotFound
}

// List returns the tenant's keys ordered by subject
func (r *KeyRepository) List(ctx context.Context, tenantID int64) ([]*accesskey.AccessKey, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*accesskey.AccessKey
	for _, k := range r.s.keys {
		if k.TenantID == tenantID {
			out = append(out, storedKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// storedKey copies a key without its plaintext
func storedKey(k *accesskey.AccessKey) *accesskey.AccessKey {
	out := *k
	out.Secret = ""
	out.SecretEncrypted = cloneBytes(k.SecretEncrypted)
	return &out
}

// RevocationRepository implements revocation.Repository
type RevocationRepository struct{ s *Store }

// Create stores a revocation, keeping CreatedAt when already set
func (r *RevocationRepository) Create(ctx context.Context, rev *revocation.Revocation) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	rev.ID = r.s.id()
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = now()
	}
	stored := *rev
	r.s.revocations[rev.ID] = &stored
	return nil
}

// ListActive returns active rows for the subject
func (r *RevocationRepository) ListActive(ctx context.Context, tenantID, subjectID int64) ([]*revocation.Revocation, error) {
	return r.List(ctx, tenantID, &subjectID, true)
}

// List returns rows for the tenant, newest first
func (r *RevocationRepository) List(ctx context.Context, tenantID int64, subjectID *int64, activeOnly bool) ([]*revocation.Revocation, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*revocation.Revocation
	for _, rev := range r.s.revocations {
		if rev.TenantID != tenantID {
			continue
		}
		if subjectID != nil && rev.SubjectID != *subjectID {
			continue
		}
		if activeOnly && !rev.Active {
			continue
		}
		c := *rev
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Deactivate clears every active row for the subject
func (r *RevocationRepository) Deactivate(ctx context.Context, tenantID, subjectID int64) (int64, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var n int64
	for _, rev := range r.s.revocations {
		if rev.TenantID == tenantID && rev.SubjectID == subjectID && rev.Active {
			rev.Active = false
			n++
		}
	}
	return n, nil
}

// AuditRepository implements audit.Repository
type AuditRepository struct{ s *Store }

// Insert appends an entry
func (r *AuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	entry.ID = r.s.id()
	stored := *entry
	r.s.entries = append(r.s.entries, &stored)
	return nil
}

// Query returns matching entries, newest first
func (r *AuditRepository) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var matched []*audit.Entry
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		e := r.s.entries[i]
		if !matches(e, filter) {
			continue
		}
		c := *e
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset >= len(matched) {
		return []*audit.Entry{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountFailures counts eligible failures from origin since a point in time
func (r *AuditRepository) CountFailures(ctx context.Context, origin string, since time.Time) (int64, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var n int64
	for _, e := range r.s.entries {
		if e.Origin == origin && !e.Success && e.RateLimitEligible && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// Acknowledge makes every eligible failure from origin ineligible
func (r *AuditRepository) Acknowledge(ctx context.Context, origin string) (int64, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var n int64
	for _, e := range r.s.entries {
		if e.Origin == origin && !e.Success && e.RateLimitEligible {
			e.RateLimitEligible = false
			n++
		}
	}
	return n, nil
}

func matches(e *audit.Entry, f audit.Filter) bool {
	if f.TenantID != nil && (e.TenantID == nil || *e.TenantID != *f.TenantID) {
		return false
	}
	if f.SubjectID != nil && (e.SubjectID == nil || *e.SubjectID != *f.SubjectID) {
		return false
	}
	if f.Identifier != "" && e.Identifier != f.Identifier {
		return false
	}
	if f.Identifier == "" && !f.IncludeListing && e.Identifier == audit.ListingIdentifier {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Origin != "" && e.Origin != f.Origin {
		return false
	}
	return true
}
