// Package models defines the upload task record and the types that travel
// with it between the registry, the scheduler and the persistence layer.
package models

import (
	"errors"
	"time"
)

// State is the scheduling state of an upload task.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsTerminal reports whether no further scheduling happens in this state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// IsActive reports whether a transfer handle may be attached in this state.
func (s State) IsActive() bool {
	return s == StateRunning || s == StatePaused
}

// PauseReason records why a task sits in StatePaused.
type PauseReason string

const (
	PauseNone         PauseReason = ""
	PauseUser         PauseReason = "user"
	PauseConnectivity PauseReason = "connectivity"
	PauseRetry        PauseReason = "retry"
	PauseRestart      PauseReason = "restart"
)

var ErrByteRange = errors.New("bytes transferred out of range")

// UploadTask is one file transfer request and its tracked state.
type UploadTask struct {
	ID string

	// Addressing.
	OwnerID      string
	TargetFolder string
	GroupID      string
	RemotePath   string

	// OriginalFileName is what the user picked, StoredName is the last
	// element of RemotePath.
	OriginalFileName string
	StoredName       string

	Payload Payload

	BytesTransferred int64
	TotalBytes       int64

	State       State
	PauseReason PauseReason
	LastError   string
	RetryCount  int
	// NextRetryAt holds a retried task in the queue until it is due.
	NextRetryAt time.Time

	Context Context

	// ResumeToken is opaque to the scheduler; the transfer service uses it
	// to continue a partially uploaded object.
	ResumeToken string

	// Reference is the stable access reference of the uploaded object.
	Reference string

	NeedsRouting  bool
	RouteAttempts int

	CreatedAt      time.Time
	StartedAt      time.Time
	LastProgressAt time.Time
	CompletedAt    time.Time
}

// Validate checks the invariants every stored task must satisfy.
func (t *UploadTask) Validate() error {
	if t.BytesTransferred < 0 || t.BytesTransferred > t.TotalBytes {
		return ErrByteRange
	}
	if t.State != StateFailed && t.LastError != "" {
		return errors.New("last error set outside failed state")
	}
	return nil
}

// Progress is the payload of an onProgress callback.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
	Percentage       int
	Speed            float64 // bytes per second
	ETASeconds       float64 // -1 when unknown
	State            State
}

// Result is delivered to onComplete on success.
type Result struct {
	Reference  string
	RemotePath string
}

// Callbacks are the per-task listeners a caller can bind.
type Callbacks struct {
	OnProgress func(taskID string, p Progress)
	OnComplete func(taskID string, r Result, err error)
}
