package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
)

type buildNode struct {
	unit       LiveUnit
	parent     int
	depth      int
	itemOnPath bool
	keep       bool
}

// Build walks the live hierarchy breadth first from rootID and freezes every
// relevant unit. A unit is relevant if it carries an item, if it is a
// reporting unit below an item, or if it is an ancestor of a relevant unit.
// The root is always kept. Revisiting a unit fails with HIERARCHY_CYCLE.
func Build(ctx context.Context, contestID, rootID string, provider LiveProvider) (Snapshot, error) {
	contestID = strings.TrimSpace(contestID)
	if contestID == "" {
		return Snapshot{}, apperrors.New(apperrors.CodeValidation, "contest id is required")
	}
	if provider == nil {
		return Snapshot{}, fmt.Errorf("live provider is required")
	}
	root, err := provider.Unit(ctx, rootID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load root unit %s: %w", rootID, err)
	}

	nodes := []buildNode{{unit: root, parent: -1, itemOnPath: len(root.Items) > 0}}
	visited := map[string]struct{}{root.ID: {}}
	for i := 0; i < len(nodes); i++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		children, err := provider.Children(ctx, nodes[i].unit.ID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load children of %s: %w", nodes[i].unit.ID, err)
		}
		sort.Slice(children, func(a, b int) bool { return children[a].ID < children[b].ID })
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return Snapshot{}, apperrors.WithMetadata(apperrors.CodeHierarchyCycle,
					fmt.Sprintf("unit %s is reachable twice below %s", child.ID, rootID),
					map[string]string{"UnitID": child.ID})
			}
			visited[child.ID] = struct{}{}
			nodes = append(nodes, buildNode{
				unit:       child,
				parent:     i,
				depth:      nodes[i].depth + 1,
				itemOnPath: nodes[i].itemOnPath || len(child.Items) > 0,
			})
		}
	}

	// Children always follow their parent in nodes, so a reverse pass sees
	// every child before its parent.
	nodes[0].keep = true
	for i := len(nodes) - 1; i > 0; i-- {
		n := &nodes[i]
		if len(n.unit.Items) > 0 || (n.unit.ReportingUnit && n.itemOnPath) {
			n.keep = true
		}
		if n.keep {
			nodes[n.parent].keep = true
		}
	}

	snapshot := Snapshot{ContestID: contestID, RootID: identity.SnapshotUnitID(contestID, root.ID)}
	for _, n := range nodes {
		if !n.keep {
			continue
		}
		unit := SnapshotUnit{
			ID:                identity.SnapshotUnitID(contestID, n.unit.ID),
			ContestID:         contestID,
			BaseID:            n.unit.ID,
			Type:              n.unit.Type,
			Name:              n.unit.Name,
			ReportingUnit:     n.unit.ReportingUnit,
			AuthorityTenantID: n.unit.AuthorityTenantID,
			Depth:             n.depth,
			Items:             cloneItems(n.unit.Items),
		}
		if n.parent >= 0 {
			unit.ParentID = identity.SnapshotUnitID(contestID, nodes[n.parent].unit.ID)
		}
		snapshot.Units = append(snapshot.Units, unit)
	}
	sortUnits(snapshot.Units)
	return snapshot, nil
}
