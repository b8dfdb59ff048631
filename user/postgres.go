package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate/authz"
	"authgate/observability/logging"
	"authgate/secure"

	"github.com/lib/pq"
)

const defaultQueryTimeout = 2 * time.Second

const selectUserQuery = `SELECT id, username, password_hash, access_token, read_role, write_role FROM users WHERE lower(username) = $1`

// PostgresProvider resolves users from a SQL table with the reference
// schema (id, username, password_hash?, access_token?, read_role?,
// write_role?). Username matching is case-insensitive at the query layer.
// It also serves Role permissions from the role columns.
type PostgresProvider struct {
	db      *sql.DB
	timeout time.Duration
	logger  *logging.Logger
}

// NewPostgresProvider creates a provider over db. Queries run under a 2s
// deadline unless the caller's context imposes a shorter one.
func NewPostgresProvider(db *sql.DB, logger *logging.Logger) *PostgresProvider {
	return &PostgresProvider{
		db:      db,
		timeout: defaultQueryTimeout,
		logger:  logger.WithModule("user.postgres"),
	}
}

// WithQueryTimeout overrides the per-query deadline.
func (p *PostgresProvider) WithQueryTimeout(d time.Duration) *PostgresProvider {
	p.timeout = d
	return p
}

func (p *PostgresProvider) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// mapError classifies driver failures; a lock timeout surfaces as ErrLocked.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return err
}

func (p *PostgresProvider) scanAccount(row *sql.Row) (*Account, error) {
	var (
		id        int64
		username  string
		password  sql.NullString
		token     sql.NullString
		readRole  sql.NullBool
		writeRole sql.NullBool
	)
	if err := row.Scan(&id, &username, &password, &token, &readRole, &writeRole); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}

	a := NewAccount(username)
	a.ID = id
	if password.Valid {
		a.SetPassword(secure.NewFromString(password.String))
	}
	if token.Valid {
		a.SetAccessToken(secure.NewFromString(token.String))
	}
	var roles []authz.Role
	if readRole.Valid && readRole.Bool {
		roles = append(roles, authz.RoleRead)
	}
	if writeRole.Valid && writeRole.Bool {
		roles = append(roles, authz.RoleWrite)
	}
	return a.WithRoles(roles...), nil
}

// GetUserByPrincipal implements Provider.
func (p *PostgresProvider) GetUserByPrincipal(ctx context.Context, principalID string) (User, error) {
	ctx, cancel := p.queryCtx(ctx)
	defer cancel()

	a, err := p.scanAccount(p.db.QueryRowContext(ctx, selectUserQuery, strings.ToLower(principalID)))
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", strings.ToLower(principalID), err)
	}
	if a == nil {
		return nil, nil
	}
	return a, nil
}

// RotatePassword implements PswStore.
func (p *PostgresProvider) RotatePassword(ctx context.Context, principalID string, newPsw *secure.String) (User, error) {
	ctx, cancel := p.queryCtx(ctx)
	defer cancel()

	key := strings.ToLower(principalID)
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2 WHERE lower(username) = $1`,
		key, string(newPsw.Bytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate password for %q: %w", key, mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, mapError(err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("rotate password for %q: %w", key, ErrNotFound)
	}
	return p.GetUserByPrincipal(ctx, key)
}

// UpsertAccessToken implements OAuth2Store. The user row is created when
// absent; otherwise only the access token is replaced.
func (p *PostgresProvider) UpsertAccessToken(ctx context.Context, principalID string, token *secure.String) (User, error) {
	ctx, cancel := p.queryCtx(ctx)
	defer cancel()

	key := strings.ToLower(principalID)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (username, access_token) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET access_token = EXCLUDED.access_token`,
		key, string(token.Bytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert access token for %q: %w", key, mapError(err))
	}
	return p.GetUserByPrincipal(ctx, key)
}

// UserPermissions implements authz.Provider for Role. An unknown principal
// holds the empty set.
func (p *PostgresProvider) UserPermissions(ctx context.Context, principalID string) (authz.Set[authz.Role], error) {
	u, err := p.GetUserByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return authz.Roles(), nil
	}
	a, ok := u.(*Account)
	if !ok {
		p.logger.Warn("Unexpected user record type for permission lookup", "principal", principalID)
		return authz.Roles(), nil
	}
	return a.Roles(), nil
}

// GroupPermissions implements authz.Provider for Role. The reference schema
// carries no group table, so the inherited set is always empty.
func (p *PostgresProvider) GroupPermissions(_ context.Context, _ string) (authz.Set[authz.Role], error) {
	return authz.Roles(), nil
}

// AllPermissions implements authz.Provider for Role.
func (p *PostgresProvider) AllPermissions(ctx context.Context, principalID string) (authz.Set[authz.Role], error) {
	return authz.MergeAll[authz.Role](ctx, p, principalID)
}
