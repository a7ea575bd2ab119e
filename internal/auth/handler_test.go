package auth

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-serverless/internal/password"
)

func newHandlerWithMock(t *testing.T) (*Handler, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	service, mock, db := newServiceWithMock(t)
	return NewHandler(service), mock, db
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLoginHandler_BadRequest(t *testing.T) {
	handler, _, db := newHandlerWithMock(t)
	defer db.Close()

	cases := map[string]string{
		"invalid json":    `{`,
		"unknown fields":  `{"email":"a@x.com","password":"longenoughpw","extra":1}`,
		"bad email":       `{"email":"not-an-email","password":"longenoughpw"}`,
		"short password":  `{"email":"a@x.com","password":"short"}`,
		"empty body":      `{}`,
		"missing  fields": `{"email":"a@x.com"}`,
	}

	for name, body := range cases {
		rec := postJSON(t, handler.Login, "/auth/login", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestLoginHandler_UniformUnauthorized(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	hash, err := password.New().Hash("the real password")
	require.NoError(t, err)

	// Unknown email.
	expectNoLockout(mock)
	mock.ExpectQuery(`SELECT id, username, email, full_name, password_hash, created_at, last_login[\s\S]*WHERE email`).
		WillReturnError(sql.ErrNoRows)
	expectFailedAttempt(mock)
	recUnknown := postJSON(t, handler.Login, "/auth/login", `{"email":"ghost@x.com","password":"whatever password"}`)

	// Known email, wrong password.
	expectNoLockout(mock)
	mock.ExpectQuery(`SELECT id, username, email, full_name, password_hash, created_at, last_login[\s\S]*WHERE email`).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", "alice", "alice@x.com", "", hash, time.Now().UTC(), nil))
	expectFailedAttempt(mock)
	recWrong := postJSON(t, handler.Login, "/auth/login", `{"email":"alice@x.com","password":"the wrong password"}`)

	// Status and body are byte-identical: nothing distinguishes the causes.
	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, recUnknown.Code, recWrong.Code)
	assert.Equal(t, recUnknown.Body.String(), recWrong.Body.String())
}

func TestLoginHandler_Success(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	hash, err := password.New().Hash("correct horse battery staple")
	require.NoError(t, err)

	expectNoLockout(mock)
	mock.ExpectQuery(`SELECT id, username, email, full_name, password_hash, created_at, last_login[\s\S]*WHERE email`).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", "alice", "alice@x.com", "Alice", hash, time.Now().UTC(), nil))
	mock.ExpectExec(`DELETE FROM auth_login_attempts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET last_login`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"alice@x.com","password":"correct horse battery staple"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var bundle CredentialBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)
	assert.Equal(t, "alice", bundle.User.Username)
	assert.InDelta(t, time.Now().Add(defaultAccessTTL).Unix(), bundle.ExpiresAt, 5)

	// The hash never appears anywhere in the response.
	assert.NotContains(t, rec.Body.String(), hash)
}

func TestRegisterHandler(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postJSON(t, handler.Register, "/auth/register",
		`{"username":"alice","email":"alice@x.com","full_name":"Alice","password":"correct horse battery staple"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "alice@x.com", view.Email)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterHandler_Duplicate(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	rec := postJSON(t, handler.Register, "/auth/register",
		`{"username":"alice","email":"alice@x.com","password":"correct horse battery staple"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterHandler_BadInput(t *testing.T) {
	handler, _, db := newHandlerWithMock(t)
	defer db.Close()

	cases := map[string]string{
		"bad username": `{"username":"a!","email":"a@x.com","password":"longenoughpw"}`,
		"bad email":    `{"username":"alice","email":"nope","password":"longenoughpw"}`,
		"bad password": `{"username":"alice","email":"a@x.com","password":"short"}`,
	}
	for name, body := range cases {
		rec := postJSON(t, handler.Register, "/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestRefreshHandler_Invalid(t *testing.T) {
	handler, _, db := newHandlerWithMock(t)
	defer db.Close()

	rec := postJSON(t, handler.Refresh, "/auth/refresh", `{"refresh_token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	rec := postJSON(t, handler.Logout, "/auth/logout", `{"refresh_token":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mock.ExpectExec(`UPDATE refresh_tokens[\s\S]*revoked_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec = postJSON(t, handler.Logout, "/auth/logout", `{"refresh_token":"some-token"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListRoles(t *testing.T) {
	handler, mock, db := newHandlerWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT r.id, r.name, p.id, p.name, p.description`).
		WillReturnRows(sqlmock.NewRows([]string{"r.id", "r.name", "p.id", "p.name", "p.description"}).
			AddRow("r1", "admin", "p1", "roles:read", "List roles").
			AddRow("r1", "admin", "p2", "permissions:read", nil).
			AddRow("r2", "viewer", nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/rbac/roles", nil)
	rec := httptest.NewRecorder()
	handler.ListRoles(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Roles []struct {
			Name        string `json:"Name"`
			Permissions []struct {
				Name string `json:"Name"`
			} `json:"Permissions"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Roles, 2)
	assert.Equal(t, "admin", payload.Roles[0].Name)
	assert.Len(t, payload.Roles[0].Permissions, 2)
	assert.Empty(t, payload.Roles[1].Permissions)
}
