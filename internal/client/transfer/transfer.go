// Package transfer defines the contract with a chunked, resumable blob store
// and the executor that drives one handle per running task.
//
// A Handle owns one upload. Its event stream carries progress samples and at
// most one terminal event (completed or failed); the stream is closed after
// the terminal event or after Cancel.
package transfer

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
)

var (
	ErrHandleClosed = errors.New("transfer handle closed")
	ErrNotStarted   = errors.New("transfer not started")
)

type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

type Event struct {
	Kind  EventKind
	Bytes int64
	Total int64
	// ResumeToken lets a new handle continue from Bytes.
	ResumeToken string
	Err         error
}

// Request describes the object a handle uploads. Offset and ResumeToken are
// set when continuing an earlier attempt.
type Request struct {
	TaskID      string
	RemotePath  string
	Payload     models.Payload
	Offset      int64
	ResumeToken string
}

type Handle interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	// Cancel aborts the upload and releases remote state. It does not wait
	// for in-flight work.
	Cancel() error
	Events() <-chan Event
	// AccessReference returns the stable reference of a completed upload.
	AccessReference(ctx context.Context) (string, error)
}

type Service interface {
	Open(ctx context.Context, req Request) (Handle, error)
}

// ObjectDeleter removes a previously uploaded object by its reference.
type ObjectDeleter interface {
	DeleteReference(ctx context.Context, reference string) error
}
