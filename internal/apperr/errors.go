package apperr

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrStorageWrite        = errors.New("storage write error")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrUnsupportedType     = errors.New("unsupported type")
	ErrTimeout             = errors.New("timeout")
	ErrNotConnected        = errors.New("remote store not connected")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnavailable         = errors.New("remote store unavailable")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// codes is ordered: the first matching sentinel wins, so wrapping errors
// (storage write caused by a timeout) report the more specific cause.
var codes = []struct {
	err  error
	code string
}{
	{ErrTimeout, "timeout"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{ErrNotConnected, "not_connected"},
	{ErrRateLimited, "rate_limited"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrMetadataUnavailable, "metadata_unavailable"},
	{ErrUnsupportedType, "unsupported_type"},
	{ErrStorageWrite, "storage_write_failed"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrValidation, "validation_failed"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrRangeNotSatisfiable, "range_not_satisfiable"},
	{ErrUnavailable, "unavailable"},
}

// Code maps an error to the stable code exposed to clients.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// NeedsReauth reports whether the error means the remote grant must be renewed.
func NeedsReauth(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrPermissionDenied)
}
