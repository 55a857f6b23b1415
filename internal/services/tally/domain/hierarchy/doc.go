// Package hierarchy freezes the live administrative hierarchy into an
// immutable per-contest snapshot.
//
// Live units and snapshot units are distinct types. They are related only
// through identity.SnapshotUnitID, so edits to the live tree can never leak
// into a contest that already froze its copy. Traversals use explicit
// worklists; deep hierarchies never grow the call stack.
package hierarchy
