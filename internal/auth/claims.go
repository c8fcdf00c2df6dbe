package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are issued by the facility admin product; this service only verifies them.
// FacilityID scopes staff to one facility. It is empty for platform operators.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id"`
	FacilityID string    `json:"facility_id,omitempty"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
