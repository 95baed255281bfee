package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BradenHooton/riskgate/internal/models"
)

const (
	tenantKeyPrefix = "rgt_"
	tenantKeyBytes  = 32
)

// TenantKeyManager issues and hashes tenant keys of the form rgt_<64 hex chars>.
// Only the SHA-256 of a key is ever stored.
type TenantKeyManager struct {
	prefix string
}

// NewTenantKeyManager creates a TenantKeyManager
func NewTenantKeyManager() *TenantKeyManager {
	return &TenantKeyManager{prefix: tenantKeyPrefix}
}

// Generate returns a new plaintext key, shown once to the tenant, and its hash
func (m *TenantKeyManager) Generate() (plainKey, hash string, err error) {
	randomBytes := make([]byte, tenantKeyBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate tenant key: %w", err)
	}

	plainKey = m.prefix + hex.EncodeToString(randomBytes)
	return plainKey, hashKey(plainKey), nil
}

// Hash validates the key format and returns its hash. Malformed keys are
// reported as ErrUnknownTenant so callers cannot tell them from revoked ones.
func (m *TenantKeyManager) Hash(plainKey string) (string, error) {
	if !strings.HasPrefix(plainKey, m.prefix) || len(plainKey) != len(m.prefix)+2*tenantKeyBytes {
		return "", models.ErrUnknownTenant
	}
	if _, err := hex.DecodeString(plainKey[len(m.prefix):]); err != nil {
		return "", models.ErrUnknownTenant
	}
	return hashKey(plainKey), nil
}

func hashKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeHashCompare compares two key hashes in constant time
func ConstantTimeHashCompare(hash1, hash2 string) bool {
	return subtle.ConstantTimeCompare([]byte(hash1), []byte(hash2)) == 1
}
