package transfer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"
)

// Category groups transfer errors by how the scheduler reacts to them.
type Category string

const (
	CategoryNetwork      Category = "network"
	CategoryTimeout      Category = "timeout"
	CategoryTransient    Category = "transient-server"
	CategoryUnclassified Category = "unclassified"
	CategoryInvalidFile  Category = "invalid-file"
	CategoryQuota        Category = "quota"
	CategoryAuth         Category = "auth"
	CategoryCanceled     Category = "canceled"
)

// Retryable reports whether the category is on the retry allow-list.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryTransient, CategoryUnclassified:
		return true
	default:
		return false
	}
}

// Sentinels a Service can wrap to force a category.
var (
	ErrNetwork      = errors.New("network failure")
	ErrTransient    = errors.New("transient server error")
	ErrSizeMismatch = errors.New("uploaded size mismatch")
	ErrInvalidFile  = errors.New("invalid file")
	ErrQuota        = errors.New("quota exceeded")
	ErrAuth         = errors.New("authorization rejected")
)

var apiCodeCategory = map[string]Category{
	"AccessDenied":          CategoryAuth,
	"InvalidAccessKeyId":    CategoryAuth,
	"SignatureDoesNotMatch": CategoryAuth,
	"ExpiredToken":          CategoryAuth,
	"InvalidToken":          CategoryAuth,
	"AccountProblem":        CategoryAuth,

	"EntityTooLarge":       CategoryQuota,
	"QuotaExceeded":        CategoryQuota,
	"ServiceQuotaExceeded": CategoryQuota,
	"TooManyBuckets":       CategoryQuota,

	"InvalidArgument":   CategoryInvalidFile,
	"InvalidRequest":    CategoryInvalidFile,
	"EntityTooSmall":    CategoryInvalidFile,
	"KeyTooLongError":   CategoryInvalidFile,
	"InvalidObjectName": CategoryInvalidFile,
	"NoSuchBucket":      CategoryInvalidFile,

	"InternalError":      CategoryTransient,
	"ServiceUnavailable": CategoryTransient,
	"SlowDown":           CategoryTransient,
	"NoSuchUpload":       CategoryTransient,
	"InvalidPart":        CategoryTransient,
	"InvalidPartOrder":   CategoryTransient,
	"BadDigest":          CategoryTransient,
	"IncompleteBody":     CategoryTransient,

	"RequestTimeout":       CategoryTimeout,
	"RequestTimeTooSkewed": CategoryTimeout,
}

// Classify maps an error to a Category. nil classifies as unclassified.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnclassified
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrAuth):
		return CategoryAuth
	case errors.Is(err, ErrQuota):
		return CategoryQuota
	case errors.Is(err, ErrInvalidFile), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return CategoryInvalidFile
	case errors.Is(err, ErrTransient), errors.Is(err, ErrSizeMismatch):
		return CategoryTransient
	case errors.Is(err, ErrNetwork):
		return CategoryNetwork
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if c, ok := apiCodeCategory[apiErr.ErrorCode()]; ok {
			return c
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if c, ok := statusCategory(respErr.HTTPStatusCode()); ok {
			return c
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryNetwork
	}

	return CategoryUnclassified
}

func statusCategory(code int) (Category, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return CategoryAuth, true
	case code == http.StatusRequestEntityTooLarge || code == http.StatusInsufficientStorage:
		return CategoryQuota, true
	case code == http.StatusRequestTimeout:
		return CategoryTimeout, true
	case code == http.StatusTooManyRequests || code >= 500:
		return CategoryTransient, true
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		return CategoryInvalidFile, true
	}
	return "", false
}
