// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based engine configuration storage
//   - Catalogue: YAML source catalogue with live reload
package file
