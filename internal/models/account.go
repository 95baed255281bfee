package models

import (
	"time"
)

// LockoutThreshold is the consecutive-failure count at which password-only
// login is refused until MFA succeeds.
const LockoutThreshold = 5

// Account is a tenant-scoped user record.
type Account struct {
	ID           string
	TenantID     string
	PasswordHash string
	Details      map[string]string
	Counters     AttemptCounters
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptCounters is the per-account state mutated by the login state machine.
type AttemptCounters struct {
	Attempts    int     // consecutive failures since the last reset
	TotalLogins int     // accepted logins, monotonically increasing
	AllAttempts []int   // value of Attempts at each reset, append-only
	MFAKey      *string // nil until sign-up completes
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (c AttemptCounters) Clone() AttemptCounters {
	out := c
	out.AllAttempts = append([]int(nil), c.AllAttempts...)
	if c.MFAKey != nil {
		key := *c.MFAKey
		out.MFAKey = &key
	}
	return out
}

// LockedOut reports whether password-only login must be refused.
func (c *AttemptCounters) LockedOut() bool {
	return c.Attempts >= LockoutThreshold
}

// RecordFailure counts a password mismatch.
func (c *AttemptCounters) RecordFailure() {
	c.Attempts++
}

// Reset closes the current failure streak: the streak length is appended to
// the audit trail, the streak is cleared and the login is counted.
func (c *AttemptCounters) Reset() {
	c.AllAttempts = append(c.AllAttempts, c.Attempts)
	c.Attempts = 0
	c.TotalLogins++
}

// RotateMFAKey replaces the stored MFA key.
func (c *AttemptCounters) RotateMFAKey(key string) {
	c.MFAKey = &key
}

// AccountMatch selects accounts within a tenant. An empty match selects all.
type AccountMatch struct {
	ID      string
	Details map[string]string
}

// MatchIdentifier builds a match for a single identifier/value pair, where
// "id" addresses the account ID and anything else a detail field.
func MatchIdentifier(identifier, value string) AccountMatch {
	if identifier == "id" {
		return AccountMatch{ID: value}
	}
	return AccountMatch{Details: map[string]string{identifier: value}}
}

// AccountPatch carries the columns an update may change; nil fields are left as-is.
type AccountPatch struct {
	Details      map[string]string
	PasswordHash *string
	Attempts     *int
	TotalLogins  *int
}

// IsEmpty reports whether the patch changes nothing.
func (p *AccountPatch) IsEmpty() bool {
	return len(p.Details) == 0 && p.PasswordHash == nil && p.Attempts == nil && p.TotalLogins == nil
}
