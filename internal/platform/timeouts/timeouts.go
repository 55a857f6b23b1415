// Package timeouts defines shared timeout constants used across tally
// binaries.
package timeouts

import "time"

// Shutdown limits how long a gRPC server drains in-flight calls before it
// is closed.
const Shutdown = 5 * time.Second

// TelemetryFlush limits how long pending spans are flushed on exit.
const TelemetryFlush = 5 * time.Second

// Maintenance is the default budget of one maintenance command.
const Maintenance = 10 * time.Minute
