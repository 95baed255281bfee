package models

import (
	"slices"
	"time"
)

// Tenant owns an isolated set of accounts and declares the custom detail
// fields its accounts may carry.
type Tenant struct {
	ID        string
	KeyHash   string // SHA-256 of the tenant key, the plaintext is shown once
	Fields    []string
	CreatedAt time.Time
}

// HasField reports whether name is one of the tenant's declared detail fields
func (t *Tenant) HasField(name string) bool {
	return slices.Contains(t.Fields, name)
}

// ReservedFields are managed by the service and can never be declared as
// custom detail fields.
var ReservedFields = []string{
	"id",
	"password",
	"total_logins",
	"prev_locations",
	"prev_devices",
	"prev_logins",
	"attempts",
	"all_attempts",
	"mfa_key",
}

// IsReservedField reports whether name collides with a service-managed field
func IsReservedField(name string) bool {
	return slices.Contains(ReservedFields, name)
}
