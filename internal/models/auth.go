package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are carried by the session token issued after an admitted login
type TokenClaims struct {
	Type      string `json:"type"`
	TenantID  string `json:"tenant_id"`
	AccountID string `json:"account_id"`
	// Method records how the session was admitted: "password" or "mfa"
	Method string `json:"method"`
	jwt.RegisteredClaims
}

const (
	SessionMethodPassword = "password"
	SessionMethodMFA      = "mfa"
)
