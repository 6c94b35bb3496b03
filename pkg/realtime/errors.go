package realtime

import "errors"

var ErrClosed = errors.New("realtime: service is shut down")
