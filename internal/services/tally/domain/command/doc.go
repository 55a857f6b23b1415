// Package command defines the command envelope, pure decisions and the
// command-type registry.
//
// A command addresses exactly one stream. Deciders turn a command and the
// replayed stream state into a Decision: either events to append or
// rejections, never both.
package command
