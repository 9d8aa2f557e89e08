package errors

import (
	"fmt"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *TabwattError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *TabwattError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// TabNotTracked is returned when an operation targets a tab without a session.
func TabNotTracked(tabID int) *TabwattError {
	return New(ErrCodeTabNotTracked, fmt.Sprintf("tab %d is not being tracked", tabID)).
		WithDetail("tabId", tabID)
}

// CollaboratorUnavailable marks a content collaborator that did not answer.
func CollaboratorUnavailable(tabID int, cause error) *TabwattError {
	return Wrap(cause, ErrCodeUnavailable, fmt.Sprintf("collaborator for tab %d is not responding", tabID)).
		WithDetail("tabId", tabID)
}

// StorageFailure wraps a failed read or write of a persisted key.
func StorageFailure(key string, cause error) *TabwattError {
	return Wrap(cause, ErrCodeStorage, fmt.Sprintf("storage operation on %q failed", key)).
		WithDetail("key", key)
}

// MigrationRateLimited is returned when a migration attempt happens inside the retry gate.
func MigrationRateLimited(lastAttempt time.Time, retryAfter time.Time) *TabwattError {
	return New(ErrCodeRateLimited, "migration was attempted recently; not retrying yet").
		WithDetail("lastAttempt", lastAttempt).
		WithDetail("retryAfter", retryAfter)
}

// BackupNotFound is returned by restore for an unknown backup key.
func BackupNotFound(key string) *TabwattError {
	return New(ErrCodeNotFound, fmt.Sprintf("backup %q not found", key)).
		WithDetail("backupKey", key)
}

// InvalidTimeRange is returned for history ranges outside 1h|24h|7d|30d.
func InvalidTimeRange(value string) *TabwattError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid time range %q (want 1h, 24h, 7d or 30d)", value)).
		WithDetail("timeRange", value)
}

// UnknownMessageType is returned for envelopes whose type tag is not part of the protocol.
func UnknownMessageType(kind string) *TabwattError {
	return New(ErrCodeUnknownType, fmt.Sprintf("unknown message type %q", kind)).
		WithDetail("type", kind)
}
