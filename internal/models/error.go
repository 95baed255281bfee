package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login and MFA errors
	ErrInvalidCredentials = errors.New("password wrong or stale values recorded")
	ErrAmbiguousAccount   = errors.New("user does not exist or multiple users match the identifier")
	ErrMFAKeyRejected     = errors.New("mfa key incorrect")

	// Tenant errors
	ErrUnknownTenant = errors.New("unknown tenant key")
	ErrReservedField = errors.New("reserved field name used")

	// Collaborator failures
	ErrClassifierUnavailable = errors.New("risk classifier unavailable")
	ErrStoreUnavailable      = errors.New("user store unavailable")
	ErrLocationUnavailable   = errors.New("login location unavailable")
)
