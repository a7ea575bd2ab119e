package auth

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// UserView is the public wire shape of a user. The password hash never leaves
// the service.
type UserView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// CredentialBundle is returned once on a successful login or refresh and is
// never persisted. ExpiresAt is the absolute access-token expiry in epoch
// seconds.
type CredentialBundle struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserView `json:"user"`
	ExpiresAt    int64    `json:"expires_at"`
}

// RefreshTokenRecord is the persisted side of a refresh token. Only a SHA-256
// digest of the token string is stored; the record is revoked on logout or
// rotation and cascades away with its owning user.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type LoginAttempt struct {
	Email          string
	FailedAttempts int
	LockedUntil    *time.Time
}
