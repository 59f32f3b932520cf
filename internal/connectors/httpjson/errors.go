package httpjson

import "errors"

// Adapter-specific errors.
var (
	// ErrMissingAPIKey indicates apikey auth without an api_key option.
	ErrMissingAPIKey = errors.New("httpjson: api_key option is required")

	// ErrMissingOAuthConfig indicates oauth auth without client
	// credentials.
	ErrMissingOAuthConfig = errors.New("httpjson: client_id, client_secret and token_url options are required")

	// ErrInvalidRecordType indicates an unknown record_type option.
	ErrInvalidRecordType = errors.New("httpjson: invalid record_type option")

	// ErrMalformedResponse indicates the response did not match the
	// configured shape.
	ErrMalformedResponse = errors.New("httpjson: malformed response")
)
