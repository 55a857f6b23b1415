package hierarchy

import (
	"sort"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/core/encoding"
)

// SnapshotUnit is the frozen copy of a live unit for one contest. ID and
// ParentID are derived ids; BaseID is the live unit id it was copied from.
type SnapshotUnit struct {
	ID                string `json:"id"`
	ContestID         string `json:"contest_id"`
	BaseID            string `json:"base_id"`
	ParentID          string `json:"parent_id,omitempty"`
	Type              string `json:"type,omitempty"`
	Name              string `json:"name,omitempty"`
	ReportingUnit     bool   `json:"reporting_unit,omitempty"`
	AuthorityTenantID string `json:"authority_tenant_id,omitempty"`
	Depth             int    `json:"depth"`
	Items             []Item `json:"items,omitempty"`
}

// Snapshot is the frozen hierarchy of a contest. Units are ordered by depth
// then base id, so parents always precede their children.
type Snapshot struct {
	ContestID string         `json:"contest_id"`
	RootID    string         `json:"root_id"`
	Units     []SnapshotUnit `json:"units"`
}

// Fingerprint is the content hash of the snapshot.
func (s Snapshot) Fingerprint() (string, error) {
	return encoding.ContentHash(s)
}

// Empty reports whether the snapshot has no units.
func (s Snapshot) Empty() bool {
	return len(s.Units) == 0
}

func sortUnits(units []SnapshotUnit) {
	sort.Slice(units, func(i, j int) bool {
		if units[i].Depth != units[j].Depth {
			return units[i].Depth < units[j].Depth
		}
		return units[i].BaseID < units[j].BaseID
	})
}

// Index answers structural queries over a snapshot.
type Index struct {
	snapshot Snapshot
	byID     map[string]int
	children map[string][]int
}

// NewIndex indexes s. The snapshot must not be modified afterwards.
func NewIndex(s Snapshot) *Index {
	idx := &Index{
		snapshot: s,
		byID:     make(map[string]int, len(s.Units)),
		children: make(map[string][]int),
	}
	for i, unit := range s.Units {
		idx.byID[unit.ID] = i
		if unit.ParentID != "" {
			idx.children[unit.ParentID] = append(idx.children[unit.ParentID], i)
		}
	}
	return idx
}

// Snapshot returns the indexed snapshot.
func (idx *Index) Snapshot() Snapshot {
	return idx.snapshot
}

// Unit returns the unit with the given snapshot id.
func (idx *Index) Unit(id string) (SnapshotUnit, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return SnapshotUnit{}, false
	}
	return idx.snapshot.Units[i], true
}

// Children returns the direct children of a unit in snapshot order.
func (idx *Index) Children(id string) []SnapshotUnit {
	positions := idx.children[id]
	out := make([]SnapshotUnit, 0, len(positions))
	for _, i := range positions {
		out = append(out, idx.snapshot.Units[i])
	}
	return out
}

// Ancestors returns the parent chain of a unit, nearest first.
func (idx *Index) Ancestors(id string) []SnapshotUnit {
	var out []SnapshotUnit
	unit, ok := idx.Unit(id)
	for ok && unit.ParentID != "" {
		unit, ok = idx.Unit(unit.ParentID)
		if ok {
			out = append(out, unit)
		}
	}
	return out
}

// ItemsFor returns the items a unit reports for: those attached to the unit
// itself or any ancestor, ordered by id.
func (idx *Index) ItemsFor(id string) []Item {
	unit, ok := idx.Unit(id)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Item
	for _, u := range append([]SnapshotUnit{unit}, idx.Ancestors(id)...) {
		for _, it := range u.Items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Item finds an item applicable to a unit.
func (idx *Index) Item(unitID, itemID string) (Item, bool) {
	for _, it := range idx.ItemsFor(unitID) {
		if it.ID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

// BottomUp returns units deepest first, the order a rollup consumes them.
func (idx *Index) BottomUp() []SnapshotUnit {
	out := make([]SnapshotUnit, len(idx.snapshot.Units))
	for i, unit := range idx.snapshot.Units {
		out[len(out)-1-i] = unit
	}
	return out
}
