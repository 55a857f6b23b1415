package hierarchy

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

type fakeProvider struct {
	units map[string]LiveUnit
	// extraChildren injects edges that do not follow ParentID.
	extraChildren map[string][]string
}

func newFakeProvider(units ...LiveUnit) *fakeProvider {
	p := &fakeProvider{units: make(map[string]LiveUnit), extraChildren: make(map[string][]string)}
	for _, u := range units {
		p.units[u.ID] = u
	}
	return p
}

func (p *fakeProvider) Unit(_ context.Context, id string) (LiveUnit, error) {
	u, ok := p.units[id]
	if !ok {
		return LiveUnit{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("unit %s not found", id))
	}
	return u, nil
}

func (p *fakeProvider) Children(_ context.Context, id string) ([]LiveUnit, error) {
	var out []LiveUnit
	for _, u := range p.units {
		if u.ParentID == id && u.ID != id {
			out = append(out, u)
		}
	}
	for _, childID := range p.extraChildren[id] {
		out = append(out, p.units[childID])
	}
	return out, nil
}

// swissTree builds:
//
//	ch
//	├── be (item e1, tenant t-be)
//	│   ├── bern (reporting, tenant t-bern)
//	│   └── thun (reporting)
//	└── zh
//	    ├── zurich (reporting, no item on path)
//	    └── winti (reporting, item v1)
func swissTree() *fakeProvider {
	e1 := Item{ID: "e1", Kind: KindMajorityElection, Definition: ItemDefinition{Mandates: 2}}
	v1 := Item{ID: "v1", Kind: KindVote, Definition: ItemDefinition{Questions: []Question{{ID: "q1", Number: 1}}}}
	return newFakeProvider(
		LiveUnit{ID: "ch", Type: "country", Name: "Schweiz"},
		LiveUnit{ID: "be", ParentID: "ch", Type: "canton", Name: "Bern", AuthorityTenantID: "t-be", Items: []Item{e1}},
		LiveUnit{ID: "bern", ParentID: "be", Type: "municipality", ReportingUnit: true, AuthorityTenantID: "t-bern"},
		LiveUnit{ID: "thun", ParentID: "be", Type: "municipality", ReportingUnit: true},
		LiveUnit{ID: "zh", ParentID: "ch", Type: "canton", Name: "Zürich"},
		LiveUnit{ID: "zurich", ParentID: "zh", Type: "municipality", ReportingUnit: true},
		LiveUnit{ID: "winti", ParentID: "zh", Type: "municipality", ReportingUnit: true, Items: []Item{v1}},
	)
}
