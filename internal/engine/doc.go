// Package engine executes preload batches recorded in the store. A load is
// persisted as pending, moved to running, handed to the loader under its
// deadline, and finished as succeeded or failed. Per-resource progress is
// persisted and fanned out to live subscribers through a Broker.
package engine
