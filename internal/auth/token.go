package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "session"

// TokenManager issues and validates the session tokens handed out when a
// login is admitted or an MFA key is accepted.
type TokenManager struct {
	secret        []byte
	sessionExpiry time.Duration
	now           func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, sessionExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		sessionExpiry: sessionExpiry,
		now:           time.Now,
	}
}

// IssueSession signs a session token for an admitted account
func (tm *TokenManager) IssueSession(tenantID, accountID, method string) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.sessionExpiry)

	claims := &models.TokenClaims{
		Type:      sessionTokenType,
		TenantID:  tenantID,
		AccountID: accountID,
		Method:    method,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies a session token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid || claims.Type != sessionTokenType {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
