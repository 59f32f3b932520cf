// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SourceAdapter: Builds provider requests and parses provider payloads
//   - AdapterRegistry: Selects the adapter for a source type
//   - RecordStore: Normalised-record persistence with upsert semantics
//   - SourceConfigStore: Source configuration persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - Scorer: Relevance scoring for the analyze stage. Without it the
//     analyze stage stores records unscored.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
