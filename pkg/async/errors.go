package async

import "errors"

var (
	ErrPanic     = errors.New("async: function panicked")
	ErrNoFutures = errors.New("async: nothing to wait for")
)
