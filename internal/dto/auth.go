package dto

import "github.com/golang-jwt/jwt/v5"

// AuthClaims are the claims of access tokens issued by the auth service.
type AuthClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
