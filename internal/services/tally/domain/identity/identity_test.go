package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeriveDeterministic(t *testing.T) {
	a := Derive(NamespaceSnapshotUnit, "contest-1", "unit-1")
	b := Derive(NamespaceSnapshotUnit, "contest-1", "unit-1")
	if a != b {
		t.Fatalf("derive = %s and %s, want equal", a, b)
	}
	if a.Version() != 5 {
		t.Fatalf("version = %d, want 5", a.Version())
	}
	if a.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %s, want RFC4122", a.Variant())
	}
}

func TestDeriveVariesWithEachArgument(t *testing.T) {
	base := Derive(NamespaceSnapshotUnit, "contest-1", "unit-1")
	tests := []struct {
		name string
		got  uuid.UUID
	}{
		{"namespace", Derive(NamespaceUnitResult, "contest-1", "unit-1")},
		{"contest", Derive(NamespaceSnapshotUnit, "contest-2", "unit-1")},
		{"base", Derive(NamespaceSnapshotUnit, "contest-1", "unit-2")},
		{"boundary", Derive(NamespaceSnapshotUnit, "contest-1u", "nit-1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == base {
				t.Fatalf("derive did not change when varying %s", tt.name)
			}
		})
	}
}

func TestNamespacesDistinct(t *testing.T) {
	namespaces := []uuid.UUID{
		NamespaceSnapshotUnit,
		NamespaceUnitResult,
		NamespaceBundle,
		NamespaceImportBatch,
		NamespaceExportConfig,
	}
	seen := make(map[uuid.UUID]struct{})
	for _, ns := range namespaces {
		id := Derive(ns, "contest-1", "x")
		if _, ok := seen[id]; ok {
			t.Fatalf("collision for namespace %s", ns)
		}
		seen[id] = struct{}{}
	}
}

func TestHelpersComposeBaseIDs(t *testing.T) {
	if UnitResultID("c", "item-1", "unit-1") == UnitResultID("c", "item-1u", "nit-1") {
		t.Fatal("expected distinct result ids")
	}
	if BundleID("c", "r", 1) == BundleID("c", "r", 2) {
		t.Fatal("expected distinct bundle ids")
	}
	if SnapshotUnitID("c", "u") != Derive(NamespaceSnapshotUnit, "c", "u").String() {
		t.Fatal("expected snapshot id to use the snapshot namespace")
	}
	if ImportBatchID("c", "file.yaml") == SnapshotUnitID("c", "file.yaml") {
		t.Fatal("expected import batch ids to live in their own namespace")
	}
}

func TestUnitResultIDSeparatorCannotCollide(t *testing.T) {
	if UnitResultID("c", "a/b", "c") == UnitResultID("c", "a", "b/c") {
		t.Fatal("expected length prefix to separate item and unit ids")
	}
}
