// Package app composes the tally domain into the service used by the
// submission API, the maintenance CLI and the rollup worker.
//
// Every write goes through an engine handler: the target stream is replayed,
// the command is decided against it and the resulting events are appended
// with an expected-version check. Commands that touch two streams append to
// the unit result first, so a bundle never exists without the reservation
// that counts it.
package app
