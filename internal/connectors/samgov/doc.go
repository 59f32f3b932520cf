// Package samgov implements the source adapter for the SAM.gov
// opportunities API: api-key authentication, offset pagination, and
// JSON parsing into normalised records.
package samgov
