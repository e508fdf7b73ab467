// Package hostfuncs provides byte-level host function handlers: a registry of
// named handlers that take and return JSON, with middleware and ready-made
// bundles. It has no runtime dependency; host.FromRegistry exposes a registry
// to plugins as (i64) -> (i64) host functions over kernel memory blocks.
package hostfuncs
