// Package store provides core.DataStore implementations. InMemoryStore lives
// here; durable backends live in the postgres and sqlite subpackages.
//
// All backends share the same record semantics: a record is addressed by its
// id, grouped under a namespace key and filtered by up to three metadata
// columns. Writes without allowMultiple replace the newest record that has
// the same key and metadata.
package store
