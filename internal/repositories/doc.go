// Package repositories persists upload jobs and their targets in SQLite.
//
// [Store] is the single owner of the jobs and targets tables. Writes go through one
// mutex-guarded connection, timestamps are stored as fixed-width UTC ISO-8601 text so
// that SQL string comparison orders them, and the dispatch claim is an optimistic
// compare-and-set on (state, updated_at).
package repositories
