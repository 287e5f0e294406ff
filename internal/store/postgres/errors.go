package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/errs"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// constraintErrors maps schema constraint names to domain errors
var constraintErrors = map[string]error{
	"accounts_tenant_name_key":              directory.ErrAccountExists,
	"account_aliases_tenant_name_key":       directory.ErrAliasExists,
	"account_tags_tenant_name_account_key":  directory.ErrTagExists,
	"account_groups_tenant_name_key":        directory.ErrGroupExists,
	"account_group_members_pkey":            directory.ErrMembershipExists,
	"account_aliases_account_id_fkey":       directory.ErrAccountNotFound,
	"account_tags_account_id_fkey":          directory.ErrAccountNotFound,
	"account_group_members_account_id_fkey": directory.ErrAccountNotFound,
	"account_group_members_group_id_fkey":   directory.ErrGroupNotFound,
	"access_keys_tenant_subject_key":        accesskey.ErrKeyExists,
	"access_keys_secret_hash_key":           accesskey.ErrSecretCollision,
}

// storeError translates a driver error. Constraint violations become domain
// errors; anything else is reported as the store being unavailable.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation:
			if mapped, ok := constraintErrors[pgErr.ConstraintName]; ok {
				return mapped
			}
			return fmt.Errorf("%s: %w: %s", op, errs.ErrConflict, pgErr.ConstraintName)
		}
	}
	return errs.Unavailable("failed to "+op, err)
}
