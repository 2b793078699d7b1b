// Package services publishes media to remote platforms and classifies every failure.
//
// # Publishers
//
// Each platform implements [Publisher]:
//   - [YouTubePublisher]: resumable chunked upload authorized by an OAuth credentials file
//   - [FacebookPublisher]: single multipart call to the page's videos edge
//   - [InstagramPublisher]: reels container, byte upload, processing poll, publish
//   - [TikTokPublisher]: Content Posting API init and chunked PUT; manual accounts skip the network
//
// Outbound requests of each publisher are throttled with a [rate.Limiter].
//
// # Dispatch
//
// [Dispatcher] resolves the target's account from the live registry, refuses unusable
// accounts up front and routes to the platform's publisher.
//
// # Error Handling
//
// Every failure leaving a [Dispatcher] is a [*PublishError] of one of three kinds:
//   - [KindRetryable]: rate limits, 5xx, network errors, timeouts
//   - [KindNonRetryable]: malformed requests, missing media, invalid account configuration
//   - [KindManualRequired]: revoked tokens, missing permissions, manual-upload accounts
//
// [Classify] maps arbitrary errors into this taxonomy and [PublishError.Visit] forces callers
// to handle all three.
package services
