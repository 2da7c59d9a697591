package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed remote operation so callers can branch on
// structure instead of matching error text.
type Kind string

const (
	// KindTransport covers network failures and timeouts; retryable.
	KindTransport Kind = "TRANSPORT"
	// KindAuth covers invalid or expired credentials; fatal for a pass.
	KindAuth Kind = "AUTH"
	// KindNotFound is a 404 on a read where absence is unexpected. Reads
	// that can legitimately miss return (nil, nil) instead.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict is a duplicate create; callers re-fetch the existing
	// entity and treat it as already present.
	KindConflict Kind = "CONFLICT"
	// KindMalformed marks an unparseable response; the single entity is
	// skipped and the pass continues.
	KindMalformed Kind = "MALFORMED"
	// KindInternal is everything else.
	KindInternal Kind = "INTERNAL"
)

// OpError standardizes errors returned by the directory clients.
type OpError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError constructs an OpError.
func NewOpError(kind Kind, op, message string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Message: message, Err: err}
}

func NewTransport(op string, err error) error {
	return NewOpError(KindTransport, op, "upstream unavailable", err)
}

func NewAuth(op string, err error) error {
	return NewOpError(KindAuth, op, "unauthorized", err)
}

func NewNotFound(op, message string) error {
	return NewOpError(KindNotFound, op, message, nil)
}

func NewConflict(op, message string) error {
	return NewOpError(KindConflict, op, message, nil)
}

func NewMalformed(op string, err error) error {
	return NewOpError(KindMalformed, op, "malformed response", err)
}

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindInternal
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsNotFound reports whether err is an unexpected 404.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a duplicate-create conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500 || status == http.StatusTooManyRequests:
		return KindTransport
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error to the status code the admin API reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
