// Package identity derives stable ids for contest-scoped copies of live
// entities, so a snapshot entity can be addressed without a mapping table.
package identity

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// Namespaces, one per derived entity category.
var (
	NamespaceSnapshotUnit = uuid.MustParse("8d1f6c52-4a0e-4f57-9b6e-0f3d2a7c1e01")
	NamespaceUnitResult   = uuid.MustParse("8d1f6c52-4a0e-4f57-9b6e-0f3d2a7c1e02")
	NamespaceBundle       = uuid.MustParse("8d1f6c52-4a0e-4f57-9b6e-0f3d2a7c1e03")
	NamespaceImportBatch  = uuid.MustParse("8d1f6c52-4a0e-4f57-9b6e-0f3d2a7c1e04")
	// NamespaceExportConfig is reserved for export collaborators deriving
	// configuration ids per contest.
	NamespaceExportConfig = uuid.MustParse("8d1f6c52-4a0e-4f57-9b6e-0f3d2a7c1e05")
)

// Derive returns the version-5 UUID of contestID and baseID under ns. The
// contest id is length-prefixed so that shifting bytes between the two
// arguments yields a different name.
func Derive(ns uuid.UUID, contestID, baseID string) uuid.UUID {
	name := make([]byte, 4, 4+len(contestID)+len(baseID))
	binary.BigEndian.PutUint32(name, uint32(len(contestID)))
	name = append(name, contestID...)
	name = append(name, baseID...)
	return uuid.NewSHA1(ns, name)
}

// SnapshotUnitID derives the snapshot id of a live hierarchy unit.
func SnapshotUnitID(contestID, liveUnitID string) string {
	return Derive(NamespaceSnapshotUnit, contestID, liveUnitID).String()
}

// UnitResultID derives the stream id of the result of one item in one
// reporting unit.
func UnitResultID(contestID, itemID, unitID string) string {
	return Derive(NamespaceUnitResult, contestID, strconv.Itoa(len(itemID))+":"+itemID+"/"+unitID).String()
}

// BundleID derives the stream id of a bundle from its result and number.
func BundleID(contestID, resultID string, number int) string {
	return Derive(NamespaceBundle, contestID, resultID+"#"+strconv.Itoa(number)).String()
}

// ImportBatchID derives the id of an import batch from its source reference.
func ImportBatchID(contestID, source string) string {
	return Derive(NamespaceImportBatch, contestID, source).String()
}
