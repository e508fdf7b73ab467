// Package entities provides the core data model of the host/guest boundary:
// value slots, memory blocks, and the manifest describing what to load.
package entities
