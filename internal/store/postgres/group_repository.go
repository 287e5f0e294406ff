package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/directory"
)

// GroupRepository implements directory.GroupRepository
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupSelect = `
	SELECT g.id, g.tenant_id, g.name, g.external_role_id,
		COALESCE((
			SELECT array_agg(a.name ORDER BY a.name)
			FROM account_group_members m
			JOIN accounts a ON a.id = m.account_id
			WHERE m.group_id = g.id
		), '{}')
	FROM account_groups g
`

func scanGroups(rows pgx.Rows) ([]*directory.Group, error) {
	defer rows.Close()

	var groups []*directory.Group
	for rows.Next() {
		var g directory.Group
		if err := rows.Scan(&g.ID, &g.TenantID, &g.Name, &g.ExternalRoleID, &g.Members); err != nil {
			return nil, storeError("scan group", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list groups", err)
	}
	return groups, nil
}

// Create creates a new group
func (r *GroupRepository) Create(ctx context.Context, group *directory.Group) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO account_groups (tenant_id, name, external_role_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, group.TenantID, group.Name, group.ExternalRoleID).Scan(&group.ID)
	if err != nil {
		return storeError("insert group", err)
	}
	return nil
}

// GetByName retrieves a group with its members
func (r *GroupRepository) GetByName(ctx context.Context, tenantID int64, name string) (*directory.Group, error) {
	var g directory.Group
	err := r.db.pool.QueryRow(ctx, groupSelect+`
		WHERE g.tenant_id = $1 AND g.name = $2
	`, tenantID, name).Scan(&g.ID, &g.TenantID, &g.Name, &g.ExternalRoleID, &g.Members)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrGroupNotFound
		}
		return nil, storeError("get group", err)
	}
	return &g, nil
}

// Rename changes a group's name
func (r *GroupRepository) Rename(ctx context.Context, tenantID int64, name, newName string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE account_groups SET name = $3
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name, newName)
	if err != nil {
		return storeError("rename group", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrGroupNotFound
	}
	return nil
}

// Delete removes a group; memberships cascade
func (r *GroupRepository) Delete(ctx context.Context, tenantID int64, name string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM account_groups WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	if err != nil {
		return storeError("delete group", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrGroupNotFound
	}
	return nil
}

// List returns the tenant's groups, optionally only those bound to roleID
func (r *GroupRepository) List(ctx context.Context, tenantID int64, roleID *int64) ([]*directory.Group, error) {
	rows, err := r.db.pool.Query(ctx, groupSelect+`
		WHERE g.tenant_id = $1 AND ($2::bigint IS NULL OR g.external_role_id = $2)
		ORDER BY g.name
	`, tenantID, roleID)
	if err != nil {
		return nil, storeError("list groups", err)
	}
	return scanGroups(rows)
}

// AddMember adds an account to a group
func (r *GroupRepository) AddMember(ctx context.Context, groupID, accountID int64) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO account_group_members (group_id, account_id) VALUES ($1, $2)
	`, groupID, accountID)
	if err != nil {
		return storeError("add group member", err)
	}
	return nil
}

// RemoveMember removes an account from a group
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, accountID int64) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM account_group_members WHERE group_id = $1 AND account_id = $2
	`, groupID, accountID)
	if err != nil {
		return storeError("remove group member", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrMembershipNotFound
	}
	return nil
}

// ListForAccount returns the groups an account belongs to
func (r *GroupRepository) ListForAccount(ctx context.Context, accountID int64) ([]*directory.Group, error) {
	rows, err := r.db.pool.Query(ctx, groupSelect+`
		JOIN account_group_members gm ON gm.group_id = g.id
		WHERE gm.account_id = $1
		ORDER BY g.id
	`, accountID)
	if err != nil {
		return nil, storeError("list account groups", err)
	}
	return scanGroups(rows)
}
