package application

import (
	"context"
	"errors"

	"bcexplorer/internal/domain"
)

// Describe converts an error into the short message shown next to the
// section that raised it.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingInput):
		return "Please enter a value."
	case errors.Is(err, ErrInvalidAddress):
		return "Invalid address: expected 0x followed by 40 hex characters."
	case errors.Is(err, ErrInvalidHash):
		return "Invalid transaction hash: expected 0x followed by 64 hex characters."
	case errors.Is(err, ErrInvalidBlockNumber):
		return "Invalid block number."
	case errors.Is(err, domain.ErrNotFound):
		return "Not found."
	case errors.Is(err, context.DeadlineExceeded):
		return "The provider did not answer in time."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	default:
		return "Provider error: " + err.Error()
	}
}

// IsInputError reports whether err was raised by input validation.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidHash) ||
		errors.Is(err, ErrInvalidBlockNumber)
}
