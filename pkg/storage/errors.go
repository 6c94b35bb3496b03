package storage

import "errors"

var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrEmptyKey      = errors.New("storage: empty key")
	ErrClosed        = errors.New("storage: closed")
	ErrUnknownDriver = errors.New("storage: unknown driver")
	ErrCorrupt       = errors.New("storage: stored value is not valid JSON")
	ErrPathRequired  = errors.New("storage: path is required")

	ErrFailedToParseRedisConnString = errors.New("storage: failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("storage: redis did not become ready within the given time period")
)
