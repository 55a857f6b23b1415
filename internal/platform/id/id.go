// Package id generates opaque random identifiers.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random version-4 UUID rendered as lowercase unpadded base32.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// Encode renders an existing UUID in the same base32 form as NewID.
func Encode(value uuid.UUID) string {
	return strings.ToLower(encoding.EncodeToString(value[:]))
}
