// Package common defines shared constants and sentinel errors used across
// DropVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors (bad input, rejected synchronously, never retried).
	ErrValidation = errors.New("validation error")

	// Registry errors. A generated code colliding with an existing one must
	// be rejected rather than overwrite the stored payload.
	ErrCodeCollision = errors.New("code collision")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// A defining state mutation failed to persist. The triggering operation
	// must not report success when this is returned.
	ErrDurabilityGap = errors.New("durability gap")

	// Snapshot errors. A corrupt snapshot is isolated to the one table being
	// restored and never aborts restoring the others.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// Auth errors (invalid or malformed operator token).
	ErrInvalidToken = errors.New("invalid token")
)
