// Package event defines the event envelope and event-type registry for the
// tally write path.
//
// Every unit result and every bundle is its own stream. Events carry a
// 1-based per-stream version used for optimistic concurrency and a global
// position assigned by the store, which rollups use as a read watermark.
// The registry checks addressing and payload shape before the store assigns
// version, position and integrity hashes.
package event
