// Package integrity signs and verifies event chain hashes with per-contest
// HMAC keys, so a stored stream cannot be rewritten and rehashed without the
// key material.
package integrity
