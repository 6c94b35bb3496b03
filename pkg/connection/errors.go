package connection

import "errors"

var (
	ErrNotConnected     = errors.New("connection: not connected")
	ErrMalformedMessage = errors.New("connection: malformed message")
)
