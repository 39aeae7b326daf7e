package domain

import "errors"

// Sentinel errors. Services and stores wrap them with %w; the HTTP layer
// maps them to status codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")          // 404
	ErrConflict     = errors.New("conflict")           // 409, or a lost compare-and-swap inside a store
	ErrUnauthorized = errors.New("unauthorized")       // 401
	ErrForbidden    = errors.New("forbidden")          // 403
	ErrBadRequest   = errors.New("bad request")        // 400
	ErrDependency   = errors.New("dependency failure") // 502: SMTP, SNS or S3
)
