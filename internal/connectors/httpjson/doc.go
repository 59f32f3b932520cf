// Package httpjson implements a configuration-driven source adapter for
// generic JSON HTTP APIs: field mapping through source options, token
// cursor pagination, api-key or OAuth2 client-credentials auth, and
// conditional fetches.
package httpjson
