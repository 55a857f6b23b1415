package hierarchy

import "sort"

// Permissions maps tenants to the reporting units they may submit for. A
// tenant holds authority over a unit when it is the authority of the unit
// itself or of any ancestor.
type Permissions struct {
	units map[string]map[string]struct{}
}

// BuildPermissions projects the snapshot into tenant permissions.
func BuildPermissions(s Snapshot) Permissions {
	p := Permissions{units: make(map[string]map[string]struct{})}
	// Units are ordered parents first, so each parent's tenant set is
	// complete before its children are visited.
	inherited := make(map[string][]string, len(s.Units))
	for _, unit := range s.Units {
		tenants := append([]string(nil), inherited[unit.ParentID]...)
		if unit.AuthorityTenantID != "" {
			tenants = append(tenants, unit.AuthorityTenantID)
		}
		inherited[unit.ID] = tenants
		if !unit.ReportingUnit {
			continue
		}
		for _, tenant := range tenants {
			if p.units[tenant] == nil {
				p.units[tenant] = make(map[string]struct{})
			}
			p.units[tenant][unit.ID] = struct{}{}
		}
	}
	return p
}

// CanSubmit reports whether tenantID may submit results for unitID.
func (p Permissions) CanSubmit(tenantID, unitID string) bool {
	_, ok := p.units[tenantID][unitID]
	return ok
}

// UnitsFor lists the reporting units of a tenant, sorted.
func (p Permissions) UnitsFor(tenantID string) []string {
	out := make([]string, 0, len(p.units[tenantID]))
	for id := range p.units[tenantID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ResultSlot is one (item, reporting unit) pair that is expected to report,
// with the entry defaults its result starts from.
type ResultSlot struct {
	ItemID    string
	UnitID    string
	Kind      Kind
	Numbering NumberingPolicy
}

// ResultSlots projects the snapshot into every expected unit result, ordered
// by unit then item.
func ResultSlots(s Snapshot) []ResultSlot {
	idx := NewIndex(s)
	var slots []ResultSlot
	for _, unit := range s.Units {
		if !unit.ReportingUnit {
			continue
		}
		for _, it := range idx.ItemsFor(unit.ID) {
			slots = append(slots, ResultSlot{
				ItemID:    it.ID,
				UnitID:    unit.ID,
				Kind:      it.Kind,
				Numbering: it.Definition.NumberingPolicy(),
			})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].UnitID != slots[j].UnitID {
			return slots[i].UnitID < slots[j].UnitID
		}
		return slots[i].ItemID < slots[j].ItemID
	})
	return slots
}
