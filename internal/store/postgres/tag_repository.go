package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/directory"
)

// TagRepository implements directory.TagRepository
type TagRepository struct {
	db *DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create adds an account to a tag pool, linking an existing annotation
func (r *TagRepository) Create(ctx context.Context, tag *directory.Tag) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO account_tags (tenant_id, name, account_id, annotation_id)
		VALUES ($1, $2, $3, (
			SELECT id FROM tag_annotations WHERE tenant_id = $1 AND tag_name = $2
		))
		RETURNING id, annotation_id
	`, tag.TenantID, tag.Name, tag.AccountID).Scan(&tag.ID, &tag.AnnotationID)
	if err != nil {
		return storeError("insert tag", err)
	}
	return nil
}

// Delete takes an account out of a tag pool
func (r *TagRepository) Delete(ctx context.Context, tenantID, accountID int64, name string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM account_tags
		WHERE tenant_id = $1 AND account_id = $2 AND name = $3
	`, tenantID, accountID, name)
	if err != nil {
		return storeError("delete tag", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrTagNotFound
	}
	return nil
}

// Rename renames every tag of oldName in one transaction. A member that
// already holds newName aborts the whole rename.
func (r *TagRepository) Rename(ctx context.Context, tenantID int64, oldName, newName string) (int64, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return 0, storeError("begin tag rename", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE account_tags SET name = $3
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, oldName, newName)
	if err != nil {
		return 0, storeError("rename tag", err)
	}
	n := result.RowsAffected()
	if n == 0 {
		return 0, directory.ErrTagNotFound
	}

	// The annotation follows the tags unless the new name already has one
	if _, err := tx.Exec(ctx, `
		UPDATE tag_annotations SET tag_name = $3
		WHERE tenant_id = $1 AND tag_name = $2
			AND NOT EXISTS (
				SELECT 1 FROM tag_annotations WHERE tenant_id = $1 AND tag_name = $3
			)
	`, tenantID, oldName, newName); err != nil {
		return 0, storeError("rename tag annotation", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE account_tags SET annotation_id = (
			SELECT id FROM tag_annotations WHERE tenant_id = $1 AND tag_name = $2
		)
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, newName); err != nil {
		return 0, storeError("relink tag annotation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storeError("commit tag rename", err)
	}
	return n, nil
}

// List returns tag names with member account names
func (r *TagRepository) List(ctx context.Context, tenantID int64) (map[string][]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT t.name, a.name
		FROM account_tags t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.tenant_id = $1
		ORDER BY t.name, a.name
	`, tenantID)
	if err != nil {
		return nil, storeError("list tags", err)
	}
	defer rows.Close()

	tags := make(map[string][]string)
	for rows.Next() {
		var tag, account string
		if err := rows.Scan(&tag, &account); err != nil {
			return nil, storeError("scan tag", err)
		}
		tags[tag] = append(tags[tag], account)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list tags", err)
	}
	return tags, nil
}

// SetAnnotation upserts the annotation shared by every tag of tagName
func (r *TagRepository) SetAnnotation(ctx context.Context, tenantID int64, tagName string, data []byte) (*directory.TagAnnotation, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, storeError("begin set annotation", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM account_tags WHERE tenant_id = $1 AND name = $2)
	`, tenantID, tagName).Scan(&exists); err != nil {
		return nil, storeError("check tag", err)
	}
	if !exists {
		return nil, directory.ErrTagNotFound
	}

	ann := &directory.TagAnnotation{TenantID: tenantID, TagName: tagName, Data: data}
	if err := tx.QueryRow(ctx, `
		INSERT INTO tag_annotations (tenant_id, tag_name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, tag_name) DO UPDATE SET data = EXCLUDED.data
		RETURNING id
	`, tenantID, tagName, data).Scan(&ann.ID); err != nil {
		return nil, storeError("upsert annotation", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE account_tags SET annotation_id = $3
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, tagName, ann.ID); err != nil {
		return nil, storeError("link annotation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("commit set annotation", err)
	}
	return ann, nil
}

// GetAnnotation returns the annotation of a tag pool
func (r *TagRepository) GetAnnotation(ctx context.Context, tenantID int64, tagName string) (*directory.TagAnnotation, error) {
	var ann directory.TagAnnotation
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, tag_name, data
		FROM tag_annotations
		WHERE tenant_id = $1 AND tag_name = $2
	`, tenantID, tagName).Scan(&ann.ID, &ann.TenantID, &ann.TagName, &ann.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrAnnotationNotFound
		}
		return nil, storeError("get annotation", err)
	}
	return &ann, nil
}
