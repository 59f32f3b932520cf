// Package services implements the driving port interfaces.
// Services contain the core business logic: the source registry, the
// poll orchestrator, the processing pipeline, and the admin surface,
// orchestrating calls to driven ports (adapters).
package services
