// Package storage persists the per-chat roster, team definitions, and chat
// settings in a single SQLite database.
//
// Roster rows are append-only observations: first-seen is written once and is
// the canonical "arrival order" used for mention dispatch; there is no removal
// path. Teams are admin-defined named subsets of the roster, unique per chat
// (compared case-insensitively) and addressable by slug.
package storage
