package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

// PutRollupTotals upserts totals in one transaction.
func (s *Store) PutRollupTotals(ctx context.Context, totals []storage.RollupTotal) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, total := range totals {
		stats, err := json.Marshal(total.Statistics)
		if err != nil {
			return fmt.Errorf("marshal statistics: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO rollup_totals
	(contest_id, item_id, unit_id, statistics_json, results, watermark, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(contest_id, item_id, unit_id) DO UPDATE SET statistics_json = excluded.statistics_json,
	results = excluded.results, watermark = excluded.watermark, computed_at = excluded.computed_at`,
			total.ContestID, total.ItemID, total.UnitID, stats, total.Results, int64(total.Watermark), toMillis(total.ComputedAt)); err != nil {
			return fmt.Errorf("put rollup total: %w", err)
		}
	}
	return tx.Commit()
}

// GetRollupTotal returns one total.
func (s *Store) GetRollupTotal(ctx context.Context, contestID, itemID, unitID string) (storage.RollupTotal, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RollupTotal{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT contest_id, item_id, unit_id, statistics_json, results, watermark, computed_at
FROM rollup_totals WHERE contest_id = ? AND item_id = ? AND unit_id = ?`, contestID, itemID, unitID)
	if err != nil {
		return storage.RollupTotal{}, fmt.Errorf("get rollup total: %w", err)
	}
	totals, err := scanTotals(rows)
	if err != nil {
		return storage.RollupTotal{}, err
	}
	if len(totals) == 0 {
		return storage.RollupTotal{}, storage.ErrNotFound
	}
	return totals[0], nil
}

// ListRollupTotals lists the contest's totals ordered by unit then item.
func (s *Store) ListRollupTotals(ctx context.Context, contestID, unitID string) ([]storage.RollupTotal, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT contest_id, item_id, unit_id, statistics_json, results, watermark, computed_at
FROM rollup_totals WHERE contest_id = ? AND (? = '' OR unit_id = ?) ORDER BY unit_id, item_id`, contestID, unitID, unitID)
	if err != nil {
		return nil, fmt.Errorf("list rollup totals: %w", err)
	}
	return scanTotals(rows)
}

// GetRollupCheckpoint returns the rebuild checkpoint.
func (s *Store) GetRollupCheckpoint(ctx context.Context, contestID string) (storage.RollupCheckpoint, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RollupCheckpoint{}, err
	}
	var cp storage.RollupCheckpoint
	var watermark, updatedAt int64
	var done int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT contest_id, watermark, fingerprint, completed, total, done, updated_at
FROM rollup_checkpoints WHERE contest_id = ?`, contestID).Scan(&cp.ContestID, &watermark, &cp.Fingerprint, &cp.Completed, &cp.Total, &done, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RollupCheckpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RollupCheckpoint{}, fmt.Errorf("get rollup checkpoint: %w", err)
	}
	cp.Watermark = uint64(watermark)
	cp.Done = done != 0
	cp.UpdatedAt = fromMillis(updatedAt)
	return cp, nil
}

// SaveRollupCheckpoint stores the rebuild checkpoint.
func (s *Store) SaveRollupCheckpoint(ctx context.Context, cp storage.RollupCheckpoint) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `INSERT INTO rollup_checkpoints
	(contest_id, watermark, fingerprint, completed, total, done, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(contest_id) DO UPDATE SET watermark = excluded.watermark, fingerprint = excluded.fingerprint,
	completed = excluded.completed, total = excluded.total, done = excluded.done, updated_at = excluded.updated_at`,
		cp.ContestID, int64(cp.Watermark), cp.Fingerprint, cp.Completed, cp.Total, boolInt(cp.Done), toMillis(cp.UpdatedAt)); err != nil {
		return fmt.Errorf("save rollup checkpoint: %w", err)
	}
	return nil
}

// DeleteRollups removes the contest's totals and checkpoint.
func (s *Store) DeleteRollups(ctx context.Context, contestID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM rollup_totals WHERE contest_id = ?`, contestID); err != nil {
		return fmt.Errorf("delete rollup totals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rollup_checkpoints WHERE contest_id = ?`, contestID); err != nil {
		return fmt.Errorf("delete rollup checkpoint: %w", err)
	}
	return tx.Commit()
}

func scanTotals(rows *sql.Rows) ([]storage.RollupTotal, error) {
	defer rows.Close()
	var out []storage.RollupTotal
	for rows.Next() {
		var total storage.RollupTotal
		var stats []byte
		var watermark, computedAt int64
		if err := rows.Scan(&total.ContestID, &total.ItemID, &total.UnitID, &stats, &total.Results, &watermark, &computedAt); err != nil {
			return nil, fmt.Errorf("scan rollup total: %w", err)
		}
		if err := json.Unmarshal(stats, &total.Statistics); err != nil {
			return nil, fmt.Errorf("decode statistics: %w", err)
		}
		total.Watermark = uint64(watermark)
		total.ComputedAt = fromMillis(computedAt)
		out = append(out, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rollup totals: %w", err)
	}
	return out, nil
}
