// Package models defines the upload domain: a [Job] is one media file with its metadata,
// fanned out to one [Target] per platform account.
//
// Targets carry the whole dispatch lifecycle (state, retry counter, next retry instant,
// remote result ID) and are deduplicated by [Fingerprint]. A job's state is never stored;
// [Job.State] derives it from its targets.
package models
