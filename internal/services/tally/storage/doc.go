// Package storage defines the persistence contracts of the tally service.
//
// Event streams are append-only with a per-stream version check. Contests,
// the live hierarchy, frozen snapshots and rollup totals are plain records
// that the app layer replaces wholesale.
package storage
