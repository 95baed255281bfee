package risk

import (
	"crypto/subtle"
	"fmt"
)

// MFAResult is the outcome of checking a provided MFA key
type MFAResult struct {
	Accepted bool
	NewKey   string // set only when Accepted
}

// VerifyMFA compares provided with the stored key in constant time. On a match
// a replacement key is drawn from newKey, guaranteed to differ from the old one.
// A nil stored key never matches.
func VerifyMFA(stored *string, provided string, newKey func() (string, error)) (MFAResult, error) {
	if stored == nil || provided == "" {
		return MFAResult{}, nil
	}
	if subtle.ConstantTimeCompare([]byte(*stored), []byte(provided)) != 1 {
		return MFAResult{}, nil
	}

	for range 3 {
		key, err := newKey()
		if err != nil {
			return MFAResult{}, fmt.Errorf("failed to generate mfa key: %w", err)
		}
		if key != *stored {
			return MFAResult{Accepted: true, NewKey: key}, nil
		}
	}
	return MFAResult{}, fmt.Errorf("failed to generate a fresh mfa key")
}
