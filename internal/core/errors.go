package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat     = errors.New("invalid_format")
	ErrDurationTooLong   = errors.New("duration_too_long")
	ErrUnidentifiedUser  = errors.New("unidentified_user")
	ErrMissingTarget     = errors.New("missing_target")
	ErrDuplicateReminder = errors.New("duplicate_reminder")
	ErrQuotaExceeded     = errors.New("quota_exceeded")
	ErrUnknownStatus     = errors.New("unknown_status")

	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid_state")

	ErrStoreUnavailable           = errors.New("store_unavailable")
	ErrNotificationDeliveryFailed = errors.New("notification_delivery_failed")

	// ErrStatusConflict is returned by a Store when a conditional transition
	// finds the reminder in a different status than expected.
	ErrStatusConflict = errors.New("status_conflict")
)

// storeErr classifies a store failure. Not-found and conflict pass through so
// callers can branch on them; anything else becomes ErrStoreUnavailable while
// keeping the cause in the chain.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrDuplicateReminder) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
