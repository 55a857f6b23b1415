// Package memory provides an in-process implementation of the tally storage
// contracts. Streams lock independently; only position assignment within a
// contest is serialized.
package memory
