package hierarchy

import "context"

// LiveUnit is a mutable administrative unit of the live hierarchy.
type LiveUnit struct {
	ID                string
	ParentID          string
	Type              string
	Name              string
	ReportingUnit     bool
	AuthorityTenantID string
	Items             []Item
}

// LiveProvider reads the live hierarchy. Implementations return an error
// wrapping apperrors.CodeNotFound for unknown ids.
type LiveProvider interface {
	Unit(ctx context.Context, id string) (LiveUnit, error)
	Children(ctx context.Context, id string) ([]LiveUnit, error)
}
