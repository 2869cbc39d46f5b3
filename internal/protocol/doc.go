// Package protocol implements the two-phase completion exchange: a
// client Initiates (minting a short-lived, single-use capability token
// bound to one task and user) and then Confirms (redeeming the token,
// which atomically marks the period key, appends the log record, and
// invalidates the resolution cache).
//
// The Machine drives the client-visible countdown: token minting
// overlaps the countdown instead of adding to it, confirmation fires
// just before the countdown reaches zero with a small safety buffer,
// and Abort cancels the in-flight network calls cooperatively.
package protocol
