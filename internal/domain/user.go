package domain

import "time"

// User is the flat account record. The token triple (RefreshToken,
// AccessToken, AccessTokenExpiry) is either fully set or fully nil.
type User struct {
	UserID            string     `json:"id" dynamodbav:"user_id"`
	Username          string     `json:"username" dynamodbav:"username"`
	Email             string     `json:"email" dynamodbav:"email"`
	PasswordHash      string     `json:"-" dynamodbav:"password_hash"`
	RefreshToken      *string    `json:"-" dynamodbav:"refresh_token"`
	AccessToken       *string    `json:"-" dynamodbav:"access_token"`
	AccessTokenExpiry *time.Time `json:"-" dynamodbav:"access_token_expiry"`
	IsDeleted         bool       `json:"is_deleted" dynamodbav:"is_deleted"`
	CreatedAt         time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt         time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// TokenPair returns the stored pair, or nil when the user is logged out.
func (u *User) TokenPair() *TokenPair {
	if u.AccessToken == nil || u.RefreshToken == nil || u.AccessTokenExpiry == nil {
		return nil
	}
	return &TokenPair{
		Access:            *u.AccessToken,
		Refresh:           *u.RefreshToken,
		AccessTokenExpiry: *u.AccessTokenExpiry,
	}
}

// SetTokens overwrites the token triple in memory.
func (u *User) SetTokens(p *TokenPair) {
	if p == nil {
		u.AccessToken, u.RefreshToken, u.AccessTokenExpiry = nil, nil, nil
		return
	}
	access, refresh, expiry := p.Access, p.Refresh, p.AccessTokenExpiry
	u.AccessToken, u.RefreshToken, u.AccessTokenExpiry = &access, &refresh, &expiry
}

// TokenPair is the bearer credential set bound to one user.
type TokenPair struct {
	Access            string    `json:"access"`
	Refresh           string    `json:"refresh"`
	AccessTokenExpiry time.Time `json:"access_token_expiry"`
}

// PublicUser is the response projection of a User. It never carries the
// password hash or tokens.
type PublicUser struct {
	UserID    string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewPublicUser(u *User) *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		UserID:    u.UserID,
		Username:  u.Username,
		Email:     u.Email,
		IsDeleted: u.IsDeleted,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LogoutRequest struct {
	Username string `json:"username" validate:"required"`
}
