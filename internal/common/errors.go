// Package common defines sentinel errors and small helpers shared across the
// uploader packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Scheduler errors.
	ErrTaskActive      = errors.New("task is running or paused")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrCanceled        = errors.New("upload canceled")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrSchedulerClosed = errors.New("scheduler closed")

	// Snapshot errors.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	ErrSnapshotTooLarge = errors.New("snapshot exceeds size ceiling")

	ErrorInternal = errors.New("internal error")
)
