// Package sqlite implements the tally storage contracts on SQLite
// (modernc.org/sqlite, no cgo).
//
// Appends run in immediate transactions so the stream version check and the
// insert see the same head. The (stream_id, version) unique key backs the
// check if two writers ever get past it.
package sqlite
