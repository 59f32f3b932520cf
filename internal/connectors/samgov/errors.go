package samgov

import "errors"

// SAM.gov-specific errors.
var (
	// ErrMissingAPIKey indicates the source has no api_key option.
	ErrMissingAPIKey = errors.New("samgov: api_key option is required")

	// ErrInvalidCursor indicates the cursor format is invalid.
	ErrInvalidCursor = errors.New("samgov: invalid cursor format")

	// ErrMalformedResponse indicates the response body did not match the
	// opportunities schema.
	ErrMalformedResponse = errors.New("samgov: malformed response")
)
