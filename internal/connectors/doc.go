// Package connectors groups the provider adapters. Each subpackage
// implements the SourceAdapter port for one provider type: request
// construction, pagination cursors, and payload parsing stay inside
// the connector so the core never sees provider wire formats.
//
// Adapters are registered with the AdapterRegistry at startup.
package connectors
