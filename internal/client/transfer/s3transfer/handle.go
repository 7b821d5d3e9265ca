package s3transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
)

const abortTimeout = 10 * time.Second

type handle struct {
	svc *Service
	req transfer.Request

	events chan transfer.Event

	mu        sync.Mutex
	started   bool
	finished  bool
	canceled  bool
	paused    bool
	resume    chan struct{}
	cancelRun context.CancelFunc
	token     resumeToken
}

func newHandle(svc *Service, req transfer.Request) *handle {
	return &handle{svc: svc, req: req, events: make(chan transfer.Event, 16)}
}

func (h *handle) key() string { return h.req.RemotePath }

func (h *handle) Events() <-chan transfer.Event { return h.events }

// Start launches the upload in the background and returns at once.
func (h *handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled {
		return transfer.ErrHandleClosed
	}
	if h.started {
		return nil
	}
	h.started = true

	runCtx, cancel := context.WithCancel(ctx)
	h.cancelRun = cancel
	go h.run(runCtx)
	return nil
}

// Pause takes effect after the in-flight part.
func (h *handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled || h.finished {
		return transfer.ErrHandleClosed
	}
	if !h.paused {
		h.paused = true
		h.resume = make(chan struct{})
	}
	return nil
}

func (h *handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled || h.finished {
		return transfer.ErrHandleClosed
	}
	if h.paused {
		h.paused = false
		close(h.resume)
	}
	return nil
}

// Cancel stops the upload. The multipart upload is aborted by the run
// goroutine once it has stopped.
func (h *handle) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled {
		return nil
	}
	h.canceled = true
	if !h.started {
		close(h.events)
		return nil
	}
	h.cancelRun()
	if h.paused {
		h.paused = false
		close(h.resume)
	}
	return nil
}

func (h *handle) AccessReference(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.finished {
		return "", transfer.ErrNotStarted
	}
	return h.svc.Reference(h.key()), nil
}

func (h *handle) run(ctx context.Context) {
	defer close(h.events)

	err := h.upload(ctx)

	h.mu.Lock()
	canceled := h.canceled
	if err == nil {
		h.finished = true
	}
	uploadID := h.token.UploadID
	h.mu.Unlock()

	switch {
	case canceled:
		h.abort(uploadID)
	case err != nil:
		h.emit(ctx, transfer.Event{Kind: transfer.EventFailed, Err: err})
	default:
		h.emit(ctx, transfer.Event{Kind: transfer.EventCompleted, Bytes: h.req.Payload.Size, Total: h.req.Payload.Size})
	}
}

func (h *handle) upload(ctx context.Context) error {
	total := h.req.Payload.Size

	tok, err := h.prepare(ctx)
	if err != nil {
		return err
	}
	h.setToken(tok)

	offset := tok.offset()
	h.emit(ctx, transfer.Event{Kind: transfer.EventProgress, Bytes: offset, Total: total, ResumeToken: tok.encode()})

	f, err := h.req.Payload.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", transfer.ErrInvalidFile, err)
	}
	defer f.Close()

	next := int32(len(tok.Parts)) + 1
	for offset < total || (total == 0 && len(tok.Parts) == 0) {
		if err := h.waitIfPaused(ctx); err != nil {
			return err
		}

		size := tok.PartSize
		if total-offset < size {
			size = total - offset
		}
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: read part %d: %v", transfer.ErrInvalidFile, next, err)
		}

		out, err := h.svc.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(h.svc.bucket),
			Key:           aws.String(h.key()),
			UploadId:      aws.String(tok.UploadID),
			PartNumber:    aws.Int32(next),
			Body:          bytes.NewReader(buf),
			ContentLength: aws.Int64(size),
		})
		if err != nil {
			return newObjectError("upload_part", h.svc.bucket, h.key(), err)
		}

		tok.Parts = append(tok.Parts, part{Number: next, ETag: aws.ToString(out.ETag), Size: size})
		offset += size
		next++
		h.setToken(tok)
		h.emit(ctx, transfer.Event{Kind: transfer.EventProgress, Bytes: offset, Total: total, ResumeToken: tok.encode()})
	}

	if err := h.waitIfPaused(ctx); err != nil {
		return err
	}

	completed := make([]types.CompletedPart, 0, len(tok.Parts))
	for _, p := range tok.Parts {
		completed = append(completed, types.CompletedPart{ETag: aws.String(p.ETag), PartNumber: aws.Int32(p.Number)})
	}
	_, err = h.svc.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(h.svc.bucket),
		Key:             aws.String(h.key()),
		UploadId:        aws.String(tok.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return newObjectError("complete", h.svc.bucket, h.key(), err)
	}
	return nil
}

// prepare continues the upload named by the resume token when S3 still
// knows it, and creates a new one otherwise.
func (h *handle) prepare(ctx context.Context) (resumeToken, error) {
	if h.req.ResumeToken != "" {
		tok, err := decodeToken(h.req.ResumeToken)
		if err == nil && tok.PartSize > 0 {
			server, err := h.listParts(ctx, tok.UploadID)
			if err == nil {
				tok.Parts = reconcile(server, tok.PartSize, h.req.Payload.Size)
				return tok, nil
			}
			var apiErr smithy.APIError
			if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NoSuchUpload" {
				return resumeToken{}, err
			}
		}
		h.svc.log.Warn(ctx, "resume token unusable, restarting upload", "key", h.key())
	}

	out, err := h.svc.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(h.svc.bucket),
		Key:         aws.String(h.key()),
		ContentType: contentType(h.req.Payload.ContentType),
	})
	if err != nil {
		return resumeToken{}, newObjectError("create_multipart", h.svc.bucket, h.key(), err)
	}
	return resumeToken{UploadID: aws.ToString(out.UploadId), PartSize: h.svc.partSize}, nil
}

func (h *handle) listParts(ctx context.Context, uploadID string) ([]part, error) {
	var (
		parts  []part
		marker *string
	)
	for {
		out, err := h.svc.api.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(h.svc.bucket),
			Key:              aws.String(h.key()),
			UploadId:         aws.String(uploadID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, newObjectError("list_parts", h.svc.bucket, h.key(), err)
		}
		for _, p := range out.Parts {
			parts = append(parts, part{
				Number: aws.ToInt32(p.PartNumber),
				ETag:   aws.ToString(p.ETag),
				Size:   aws.ToInt64(p.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextPartNumberMarker == nil {
			break
		}
		marker = out.NextPartNumberMarker
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts, nil
}

func (h *handle) waitIfPaused(ctx context.Context) error {
	h.mu.Lock()
	paused, resume := h.paused, h.resume
	h.mu.Unlock()

	if !paused {
		return ctx.Err()
	}
	select {
	case <-resume:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) abort(uploadID string) {
	if uploadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()

	_, err := h.svc.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(h.svc.bucket),
		Key:      aws.String(h.key()),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		h.svc.log.Warn(ctx, "abort multipart upload failed", "key", h.key(), "error", err)
	}
}

func (h *handle) setToken(t resumeToken) {
	h.mu.Lock()
	h.token = t
	h.mu.Unlock()
}

func (h *handle) emit(ctx context.Context, ev transfer.Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

func contentType(ct string) *string {
	if ct == "" {
		return aws.String("application/octet-stream")
	}
	return aws.String(ct)
}
