// Package ports defines the interfaces the host layer depends on: the bytecode
// runtime, manifest parsing and validation, and module fetching.
// Infrastructure adapters implement these interfaces.
package ports
