package user

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"authgate/authz"
	"authgate/observability/logging"
	"authgate/secure"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresMock(t *testing.T) (*PostgresProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresProvider(db, logging.NewTestLogger()), mock
}

func userColumns() []string {
	return []string{"id", "username", "password_hash", "access_token", "read_role", "write_role"}
}

func TestPostgresGetUserByPrincipal(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("vovan").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(1), "vovan", "qwerty", nil, true, false))

	u, err := p.GetUserByPrincipal(context.Background(), "Vovan")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "vovan", u.PrincipalID())
	assert.Equal(t, []byte("qwerty"), u.SessionAuthHash())

	a := u.(*Account)
	assert.True(t, a.Roles().Contains(authz.RoleRead))
	assert.False(t, a.Roles().Contains(authz.RoleWrite))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserNotFound(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	u, err := p.GetUserByPrincipal(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresToleratesNullRoleColumns(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("vovan").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(1), "vovan", "qwerty", nil, nil, nil))

	u, err := p.GetUserByPrincipal(context.Background(), "vovan")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.(*Account).Roles().IsEmpty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserQueryError(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("vovan").
		WillReturnError(errors.New("connection reset"))

	_, err := p.GetUserByPrincipal(context.Background(), "vovan")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotatePassword(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET password_hash = $2 WHERE lower(username) = $1`)).
		WithArgs("vovan", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("vovan").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(1), "vovan", "newhash", nil, false, false))

	u, err := p.RotatePassword(context.Background(), "Vovan", secure.NewFromString("newhash"))
	require.NoError(t, err)
	assert.Equal(t, []byte("newhash"), u.SessionAuthHash())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotatePasswordUnknownPrincipal(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET password_hash = $2 WHERE lower(username) = $1`)).
		WithArgs("nobody", "x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := p.RotatePassword(context.Background(), "nobody", secure.NewFromString("x"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertAccessToken(t *testing.T) {
	p, mock := setupPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (username, access_token) VALUES ($1, $2)`)).
		WithArgs("oauth.user", "t2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectUserQuery)).
		WithArgs("oauth.user").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(7), "oauth.user", nil, "t2", nil, nil))

	u, err := p.UpsertAccessToken(context.Background(), "OAuth.User", secure.NewFromString("t2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("t2"), u.SessionAuthHash())
	assert.NoError(t, mock.ExpectationsWereMet())
}
