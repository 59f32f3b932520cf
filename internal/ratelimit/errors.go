package ratelimit

import "errors"

// ErrUnknownSource indicates the source was never registered (or was
// unregistered while a caller was waiting on it).
var ErrUnknownSource = errors.New("ratelimit: unknown source")
