package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types issued by the token manager
const (
	TokenTypeAccess    = "access"
	TokenTypeRefresh   = "refresh"
	TokenTypeChallenge = "mfa" // short-lived token bridging password login and 2FA verification
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
