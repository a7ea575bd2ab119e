package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewRepository(db), mock, db
}

func TestCreateRefreshToken_StoresDigest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	raw := "raw-refresh-token"
	digest := sha256.Sum256([]byte(raw))

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(sqlmock.AnyArg(), "u1", hex.EncodeToString(digest[:]), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateRefreshToken(context.Background(), "u1", raw, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().UTC().Add(time.Hour)
	created := time.Now().UTC().Add(-time.Minute)

	mock.ExpectQuery(`SELECT id, user_id, expires_at, revoked_at, created_at[\s\S]*WHERE token_hash`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "revoked_at", "created_at"}).
			AddRow("rt1", "u1", expires, nil, created))

	record, err := repo.FindRefreshToken(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.Equal(t, "rt1", record.ID)
	assert.Equal(t, "u1", record.UserID)
	assert.Nil(t, record.RevokedAt)
}

func TestFindRefreshToken_Unknown(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, user_id, expires_at, revoked_at, created_at[\s\S]*WHERE token_hash`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindRefreshToken(context.Background(), "unknown-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateRefreshToken_Expired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, user_id, expires_at, revoked_at[\s\S]*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "revoked_at"}).
			AddRow("rt1", "u1", time.Now().UTC().Add(-time.Minute), nil))
	mock.ExpectRollback()

	_, err := repo.RotateRefreshToken(context.Background(), "old", "new", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestGetUserPermissions(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT p.name[\s\S]*JOIN user_roles`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("roles:read").
			AddRow("permissions:read"))

	set, err := repo.GetUserPermissions(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, set.Has("roles:read"))
	assert.True(t, set.Has("permissions:read"))
	assert.False(t, set.Has("users:write"))
}

func TestGetUserPermissions_None(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT p.name[\s\S]*JOIN user_roles`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	set, err := repo.GetUserPermissions(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, set.Has("roles:read"))
}

func TestAssignRole_UnknownRole(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO user_roles`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM roles`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.AssignRole(context.Background(), "u1", "nonexistent")
	assert.Error(t, err)
}

func TestAssignRole_AlreadyGranted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// ON CONFLICT DO NOTHING also yields zero rows, but the role exists.
	mock.ExpectExec(`INSERT INTO user_roles`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM roles`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	assert.NoError(t, repo.AssignRole(context.Background(), "u1", "admin"))
}

func TestCleanupStaleAuthData(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM refresh_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM auth_login_attempts`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM auth_login_ip_limits`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := repo.CleanupStaleAuthData(context.Background(), 14*24*time.Hour, 30*24*time.Hour, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.DeletedRefreshTokens)
	assert.Equal(t, int64(2), result.DeletedLoginAttempts)
	assert.Equal(t, int64(1), result.DeletedIPLimits)
}
