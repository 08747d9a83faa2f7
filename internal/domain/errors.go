package domain

import "errors"

// ErrNotFound is returned when the chain has no object for the requested key.
var ErrNotFound = errors.New("not found")
