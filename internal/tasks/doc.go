// Package tasks schedules and dispatches uploads with retry, backoff and crash recovery.
//
// # Core Operations
//
// [Scheduler] exposes four operations:
//
//  1. [Scheduler.Enqueue] : Persist a job and its targets in one transaction
//     - Targets already published or uploading are skipped
//     - Other targets with a known fingerprint are reset to pending
//
//  2. [Scheduler.Recover] : Startup recovery
//     - Targets left uploading become failed with one retry scheduled
//     - Targets whose media file is gone fail permanently
//
//  3. [Scheduler.Run] : Poll loop feeding a bounded worker pool until cancelled
//
//  4. [Scheduler.RunOnce] : One poll, then wait for the dispatches it started
//
// # Dispatch
//
// A due target is claimed with a compare-and-set in the store before the [Dispatcher] is
// called, so a target is never in flight twice. Failures are classified with
// [services.Classify] and applied through [services.PublishError.Visit]:
//   - retryable: failed, retry counter + 1, next attempt after the backoff for that counter
//   - non-retryable: failed with no retry
//   - manual required: manual_required, never selected again
//
// # Events
//
// Every transition is published on a [Bus] as an [Event]. Channel subscribers that fall
// behind miss events; function subscribers run on their own goroutine so a failing or slow
// subscriber cannot stall the scheduler.
package tasks
