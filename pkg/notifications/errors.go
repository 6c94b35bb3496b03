package notifications

import "errors"

var (
	ErrUnknownEvent   = errors.New("notifications: unknown event type")
	ErrInvalidPayload = errors.New("notifications: invalid event payload")
	ErrInvalidRequest = errors.New("notifications: invalid notification request")
	ErrNotFound       = errors.New("notifications: notification not found")
	ErrThrottled      = errors.New("notifications: presentation throttled")
	ErrUnknownKey     = errors.New("notifications: unknown catalog key")
	ErrPresenterPanic = errors.New("notifications: presenter panicked")
)
