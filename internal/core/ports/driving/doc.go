// Package driving defines the interfaces through which the outside
// world drives the engine.
//
// These are the "driving" or "primary" ports in hexagonal architecture:
// the CLI, the admin REST API, and tests call core services through
// them; core services implement them.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driving
