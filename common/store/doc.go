// Package store contains the secure preferences store: a tree of
// nodes addressed by slash-delimited paths, each holding key/value
// entries, persisted to a single file. Selected values are encrypted
// by a pluggable cipher from the cryptoprov package under a password
// obtained from the passwd package; the node path is bound into every
// ciphertext.
//
// A Store is opened on a location, mutated in memory, and written
// back with Flush or Close. Flush replaces the file atomically, so a
// crash mid-write leaves the previous content intact.
package store
