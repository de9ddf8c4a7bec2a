package model

import (
	"github.com/golang-jwt/jwt/v5"
)

// Staff is a system user.
type Staff struct {
	Base
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         Role   `db:"role" json:"role"`
	Active       bool   `db:"active" json:"active"`
}

func (s *Staff) Actor() Actor {
	return Actor{UserID: s.ID, Role: s.Role}
}

type CreateStaffRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin regulacao recepcao"`
}

type UpdateStaffRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=200"`
	Password *string `json:"password" binding:"omitempty,min=8"`
	Role     *string `json:"role" binding:"omitempty,oneof=admin regulacao recepcao"`
	Active   *bool   `json:"active"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Staff       *Staff `json:"staff"`
}

// TokenClaims are the JWT claims issued on login.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}
