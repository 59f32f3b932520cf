// Package domain defines the core business entities for Tenderline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceConfig: One external procurement-data provider
//   - NormalizedRecord: Provider-agnostic opportunity/contract/organisation/document
//   - RawBatch: Opaque bytes returned by one poll of one source
//   - ProcessingJob: A chunk of records moving through the pipeline
//   - Event: Typed message published on the engine's outbound channel
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
