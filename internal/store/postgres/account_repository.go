package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/directory"
)

// AccountRepository implements directory.AccountRepository
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `a.id, a.tenant_id, a.name, a.secret_encrypted, a.last_access_at, a.created_at`

func scanAccount(row pgx.Row) (*directory.Account, error) {
	var a directory.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.SecretEncrypted, &a.LastAccessAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, account *directory.Account) error {
	lastAccess := account.LastAccessAt
	if lastAccess.IsZero() {
		lastAccess = directory.NeverAccessed
	}

	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO accounts (tenant_id, name, secret_encrypted, last_access_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, account.TenantID, account.Name, account.SecretEncrypted, lastAccess).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return storeError("insert account", err)
	}

	account.LastAccessAt = lastAccess
	return nil
}

// GetByName retrieves an account by canonical name
func (r *AccountRepository) GetByName(ctx context.Context, tenantID int64, name string) (*directory.Account, error) {
	return r.getOne(ctx, "get account", `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.tenant_id = $1 AND a.name = $2
	`, tenantID, name)
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*directory.Account, error) {
	return r.getOne(ctx, "get account", `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.id = $1
	`, id)
}

// GetByAlias retrieves the account an alias points to
func (r *AccountRepository) GetByAlias(ctx context.Context, tenantID int64, alias string) (*directory.Account, error) {
	return r.getOne(ctx, "get account by alias", `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN account_aliases al ON al.account_id = a.id
		WHERE al.tenant_id = $1 AND al.name = $2
	`, tenantID, alias)
}

// OldestByTag returns the pool member with the oldest last access, lowest id
// first on ties
func (r *AccountRepository) OldestByTag(ctx context.Context, tenantID int64, tag string) (*directory.Account, error) {
	return r.getOne(ctx, "get account by tag", `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN account_tags t ON t.account_id = a.id
		WHERE t.tenant_id = $1 AND t.name = $2
		ORDER BY a.last_access_at ASC, a.id ASC
		LIMIT 1
	`, tenantID, tag)
}

func (r *AccountRepository) getOne(ctx context.Context, op, query string, args ...any) (*directory.Account, error) {
	account, err := scanAccount(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrAccountNotFound
		}
		return nil, storeError(op, err)
	}
	return account, nil
}

// UpdateSecret replaces the sealed secret
func (r *AccountRepository) UpdateSecret(ctx context.Context, tenantID int64, name string, secret []byte) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts SET secret_encrypted = $3
		WHERE tenant_id = $1 AND name = $2
	`, tenantID, name, secret)
	if err != nil {
		return storeError("update account secret", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account; aliases, tags and memberships cascade
func (r *AccountRepository) Delete(ctx context.Context, tenantID int64, name string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM accounts WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	if err != nil {
		return storeError("delete account", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrAccountNotFound
	}
	return nil
}

// List returns materialized accounts ordered by name
func (r *AccountRepository) List(ctx context.Context, tenantID int64, filter directory.Filter) ([]*directory.Account, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+accountColumns+`,
			COALESCE((
				SELECT array_agg(g.name ORDER BY g.name)
				FROM account_group_members m
				JOIN account_groups g ON g.id = m.group_id
				WHERE m.account_id = a.id
			), '{}'),
			COALESCE((
				SELECT array_agg(t.name ORDER BY t.name)
				FROM account_tags t
				WHERE t.account_id = a.id
			), '{}'),
			COALESCE((
				SELECT array_agg(al.name ORDER BY al.name)
				FROM account_aliases al
				WHERE al.account_id = a.id
			), '{}')
		FROM accounts a
		WHERE a.tenant_id = $1
			AND ($2::text = '' OR EXISTS (
				SELECT 1 FROM account_group_members m
				JOIN account_groups g ON g.id = m.group_id
				WHERE m.account_id = a.id AND g.name = $2::text
			))
			AND ($3::text = '' OR EXISTS (
				SELECT 1 FROM account_tags t
				WHERE t.account_id = a.id AND t.name = $3::text
			))
		ORDER BY a.name
	`, tenantID, filter.Group, filter.Tag)
	if err != nil {
		return nil, storeError("list accounts", err)
	}
	defer rows.Close()

	var accounts []*directory.Account
	for rows.Next() {
		var a directory.Account
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.Name, &a.SecretEncrypted, &a.LastAccessAt, &a.CreatedAt,
			&a.Groups, &a.Tags, &a.Aliases,
		); err != nil {
			return nil, storeError("scan account", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list accounts", err)
	}
	return accounts, nil
}

// MarkAccessed sets the last access time
func (r *AccountRepository) MarkAccessed(ctx context.Context, id int64, when time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts SET last_access_at = $2 WHERE id = $1
	`, id, when)
	if err != nil {
		return storeError("mark account accessed", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrAccountNotFound
	}
	return nil
}

// AliasRepository implements directory.AliasRepository
type AliasRepository struct {
	db *DB
}

// NewAliasRepository creates a new alias repository
func NewAliasRepository(db *DB) *AliasRepository {
	return &AliasRepository{db: db}
}

// Create creates a new alias
func (r *AliasRepository) Create(ctx context.Context, alias *directory.Alias) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO account_aliases (tenant_id, name, account_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, alias.TenantID, alias.Name, alias.AccountID).Scan(&alias.ID)
	if err != nil {
		return storeError("insert alias", err)
	}
	return nil
}

// Delete removes an alias and returns it
func (r *AliasRepository) Delete(ctx context.Context, tenantID int64, name string) (*directory.Alias, error) {
	var al directory.Alias
	err := r.db.pool.QueryRow(ctx, `
		WITH removed AS (
			DELETE FROM account_aliases
			WHERE tenant_id = $1 AND name = $2
			RETURNING id, tenant_id, name, account_id
		)
		SELECT removed.id, removed.tenant_id, removed.name, removed.account_id, a.name
		FROM removed
		JOIN accounts a ON a.id = removed.account_id
	`, tenantID, name).Scan(&al.ID, &al.TenantID, &al.Name, &al.AccountID, &al.AccountName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrAliasNotFound
		}
		return nil, storeError("delete alias", err)
	}
	return &al, nil
}

// List returns the tenant's aliases ordered by name
func (r *AliasRepository) List(ctx context.Context, tenantID int64) ([]*directory.Alias, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT al.id, al.tenant_id, al.name, al.account_id, a.name
		FROM account_aliases al
		JOIN accounts a ON a.id = al.account_id
		WHERE al.tenant_id = $1
		ORDER BY al.name
	`, tenantID)
	if err != nil {
		return nil, storeError("list aliases", err)
	}
	defer rows.Close()

	var aliases []*directory.Alias
	for rows.Next() {
		var al directory.Alias
		if err := rows.Scan(&al.ID, &al.TenantID, &al.Name, &al.AccountID, &al.AccountName); err != nil {
			return nil, storeError("scan alias", err)
		}
		aliases = append(aliases, &al)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list aliases", err)
	}
	return aliases, nil
}
