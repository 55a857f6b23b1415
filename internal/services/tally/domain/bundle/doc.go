// Package bundle owns ballot entry and review for one numbered bundle.
//
// A bundle freezes the item definition and entry parameters it was created
// with, so later edits to the item cannot change how its ballots validate.
// Ballot numbers inside a bundle are always continuous and only the last
// ballot may be deleted.
package bundle
