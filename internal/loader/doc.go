// Package loader loads a heterogeneous batch of media resources concurrently
// and races the batch against a deadline.
//
// A Loader is built from a Dependencies set holding one LoadFunc per resource
// kind. Any field left nil falls back to the default loader for that kind,
// which fetches the resource and probes it with package media.
//
// Load fans out one goroutine per resource and settles on whichever comes
// first: every resource ready (nil), any resource failing, the deadline
// firing, or the caller's context ending. Every failure satisfies
// errors.Is(err, ErrLoadFailed). When the batch settles the context handed to
// in-flight loads is cancelled; a LoadFunc that ignores its context keeps
// running in the background with nobody observing its result.
package loader
