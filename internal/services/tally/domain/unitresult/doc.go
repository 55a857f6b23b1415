// Package unitresult owns the lifecycle of one (item, reporting unit) result.
//
// The result stream tracks which bundle numbers were ever reserved and how
// many bundles still await review or deletion. Submission and finalization
// are refused while any bundle is pending.
package unitresult
