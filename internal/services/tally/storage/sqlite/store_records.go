package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

// PutContest inserts or replaces a contest.
func (s *Store) PutContest(ctx context.Context, c contest.Contest) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" {
		return apperrors.New(apperrors.CodeValidation, "contest id is required")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO contests (id, name, date, state, root_unit_id, tenant_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, date = excluded.date, state = excluded.state,
	root_unit_id = excluded.root_unit_id, tenant_id = excluded.tenant_id, updated_at = excluded.updated_at`,
		c.ID, c.Name, toMillis(c.Date), string(c.State), c.RootUnitID, c.TenantID, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put contest: %w", err)
	}
	return nil
}

// GetContest returns a contest.
func (s *Store) GetContest(ctx context.Context, contestID string) (contest.Contest, error) {
	if err := s.ready(ctx); err != nil {
		return contest.Contest{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, date, state, root_unit_id, tenant_id, created_at, updated_at
FROM contests WHERE id = ?`, contestID)
	if err != nil {
		return contest.Contest{}, fmt.Errorf("get contest: %w", err)
	}
	contests, err := scanContests(rows)
	if err != nil {
		return contest.Contest{}, err
	}
	if len(contests) == 0 {
		return contest.Contest{}, storage.ErrNotFound
	}
	return contests[0], nil
}

// ListContests returns every contest ordered by id.
func (s *Store) ListContests(ctx context.Context) ([]contest.Contest, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, date, state, root_unit_id, tenant_id, created_at, updated_at
FROM contests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	return scanContests(rows)
}

// DeleteContest removes a contest record.
func (s *Store) DeleteContest(ctx context.Context, contestID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM contests WHERE id = ?`, contestID); err != nil {
		return fmt.Errorf("delete contest: %w", err)
	}
	return nil
}

func scanContests(rows *sql.Rows) ([]contest.Contest, error) {
	defer rows.Close()
	var out []contest.Contest
	for rows.Next() {
		var c contest.Contest
		var state string
		var date, createdAt, updatedAt int64
		if err := rows.Scan(&c.ID, &c.Name, &date, &state, &c.RootUnitID, &c.TenantID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		c.State = contest.State(state)
		c.Date = fromMillis(date)
		c.CreatedAt = fromMillis(createdAt)
		c.UpdatedAt = fromMillis(updatedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read contests: %w", err)
	}
	return out, nil
}

// PutLiveUnits inserts or replaces live units in one transaction.
func (s *Store) PutLiveUnits(ctx context.Context, units []hierarchy.LiveUnit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, u := range units {
		if strings.TrimSpace(u.ID) == "" {
			return apperrors.New(apperrors.CodeValidation, "live unit id is required")
		}
		if u.ParentID == u.ID {
			return apperrors.New(apperrors.CodeHierarchyCycle, fmt.Sprintf("unit %s is its own parent", u.ID))
		}
		items, err := json.Marshal(u.Items)
		if err != nil {
			return fmt.Errorf("marshal items of %s: %w", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO live_units (id, parent_id, type, name, reporting_unit, authority_tenant_id, items_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET parent_id = excluded.parent_id, type = excluded.type, name = excluded.name,
	reporting_unit = excluded.reporting_unit, authority_tenant_id = excluded.authority_tenant_id, items_json = excluded.items_json`,
			u.ID, u.ParentID, u.Type, u.Name, boolInt(u.ReportingUnit), u.AuthorityTenantID, items); err != nil {
			return fmt.Errorf("put live unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteLiveUnit removes a live unit. Its children keep their parent id.
func (s *Store) DeleteLiveUnit(ctx context.Context, unitID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM live_units WHERE id = ?`, unitID); err != nil {
		return fmt.Errorf("delete live unit: %w", err)
	}
	return nil
}

// Unit returns a live unit.
func (s *Store) Unit(ctx context.Context, id string) (hierarchy.LiveUnit, error) {
	if err := s.ready(ctx); err != nil {
		return hierarchy.LiveUnit{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, parent_id, type, name, reporting_unit, authority_tenant_id, items_json
FROM live_units WHERE id = ?`, id)
	if err != nil {
		return hierarchy.LiveUnit{}, fmt.Errorf("get live unit: %w", err)
	}
	units, err := scanLiveUnits(rows)
	if err != nil {
		return hierarchy.LiveUnit{}, err
	}
	if len(units) == 0 {
		return hierarchy.LiveUnit{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("live unit %s not found", id))
	}
	return units[0], nil
}

// Children returns the live children of a unit ordered by id.
func (s *Store) Children(ctx context.Context, id string) ([]hierarchy.LiveUnit, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, parent_id, type, name, reporting_unit, authority_tenant_id, items_json
FROM live_units WHERE parent_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list live children: %w", err)
	}
	return scanLiveUnits(rows)
}

func scanLiveUnits(rows *sql.Rows) ([]hierarchy.LiveUnit, error) {
	defer rows.Close()
	var out []hierarchy.LiveUnit
	for rows.Next() {
		var u hierarchy.LiveUnit
		var reporting int
		var items []byte
		if err := rows.Scan(&u.ID, &u.ParentID, &u.Type, &u.Name, &reporting, &u.AuthorityTenantID, &items); err != nil {
			return nil, fmt.Errorf("scan live unit: %w", err)
		}
		u.ReportingUnit = reporting != 0
		if err := json.Unmarshal(items, &u.Items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", u.ID, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read live units: %w", err)
	}
	return out, nil
}

// GetSnapshot returns the contest snapshot, empty when none was built.
func (s *Store) GetSnapshot(ctx context.Context, contestID string) (hierarchy.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return hierarchy.Snapshot{}, err
	}
	snap := hierarchy.Snapshot{ContestID: contestID}
	err := s.sqlDB.QueryRowContext(ctx, `SELECT root_id FROM snapshots WHERE contest_id = ?`, contestID).Scan(&snap.RootID)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return hierarchy.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, contest_id, base_id, parent_id, type, name, reporting_unit, authority_tenant_id, depth, items_json
FROM snapshot_units WHERE contest_id = ? ORDER BY depth, base_id`, contestID)
	if err != nil {
		return hierarchy.Snapshot{}, fmt.Errorf("list snapshot units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u hierarchy.SnapshotUnit
		var reporting int
		var items []byte
		if err := rows.Scan(&u.ID, &u.ContestID, &u.BaseID, &u.ParentID, &u.Type, &u.Name, &reporting, &u.AuthorityTenantID, &u.Depth, &items); err != nil {
			return hierarchy.Snapshot{}, fmt.Errorf("scan snapshot unit: %w", err)
		}
		u.ReportingUnit = reporting != 0
		if err := json.Unmarshal(items, &u.Items); err != nil {
			return hierarchy.Snapshot{}, fmt.Errorf("decode items of %s: %w", u.ID, err)
		}
		snap.Units = append(snap.Units, u)
	}
	if err := rows.Err(); err != nil {
		return hierarchy.Snapshot{}, fmt.Errorf("read snapshot units: %w", err)
	}
	return snap, nil
}

// ReplaceSnapshot stores the contest snapshot in one transaction.
func (s *Store) ReplaceSnapshot(ctx context.Context, snapshot hierarchy.Snapshot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.ContestID) == "" {
		return apperrors.New(apperrors.CodeValidation, "snapshot contest id is required")
	}
	fingerprint, err := snapshot.Fingerprint()
	if err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE contest_id = ?`, snapshot.ContestID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (contest_id, root_id, fingerprint, built_at) VALUES (?, ?, ?, ?)`,
		snapshot.ContestID, snapshot.RootID, fingerprint, toMillis(time.Now())); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	for _, u := range snapshot.Units {
		items, err := json.Marshal(u.Items)
		if err != nil {
			return fmt.Errorf("marshal items of %s: %w", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_units
	(contest_id, id, base_id, parent_id, type, name, reporting_unit, authority_tenant_id, depth, items_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshot.ContestID, u.ID, u.BaseID, u.ParentID, u.Type, u.Name, boolInt(u.ReportingUnit), u.AuthorityTenantID, u.Depth, items); err != nil {
			return fmt.Errorf("insert snapshot unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteSnapshot removes the contest snapshot and its units.
func (s *Store) DeleteSnapshot(ctx context.Context, contestID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE contest_id = ?`, contestID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
