// Package engine wires command validation, stream replay, decision routing,
// and compare-and-append for unit result and bundle streams.
//
// Every command runs against one stream: its events are replayed into state,
// the decider emits events, and those are appended only if the stream is
// still at the version the decision was made against.
package engine
