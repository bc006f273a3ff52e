package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

type positionRow struct {
	Path      string `db:"wrs_path"`
	Row       string `db:"wrs_row"`
	CreatedAt string `db:"created_at"`
}

func (r positionRow) position() (model.TrackedPosition, error) {
	createdAt, err := model.ParseCatalogTime(r.CreatedAt)
	if err != nil {
		return model.TrackedPosition{}, err
	}
	return model.TrackedPosition{Path: r.Path, Row: r.Row, CreatedAt: createdAt}, nil
}

// TrackPosition starts monitoring a path/row. Path and row are padded to
// three digits. Tracking an already tracked position is not an error.
func (s *Store) TrackPosition(ctx context.Context, path, row string) (model.TrackedPosition, bool, error) {
	var err error
	if path, err = sceneid.PadPosition(path); err != nil {
		return model.TrackedPosition{}, false, err
	}
	if row, err = sceneid.PadPosition(row); err != nil {
		return model.TrackedPosition{}, false, err
	}

	createdAt := s.timestamp()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO tracked_positions (wrs_path, wrs_row, created_at)
		VALUES (?, ?, ?) ON CONFLICT (wrs_path, wrs_row) DO NOTHING`), path, row, model.FormatTimestamp(createdAt))
	if err != nil {
		return model.TrackedPosition{}, false, err
	}
	if inserted, err := result.RowsAffected(); err != nil {
		return model.TrackedPosition{}, false, err
	} else if inserted == 1 {
		return model.TrackedPosition{Path: path, Row: row, CreatedAt: createdAt}, true, nil
	}
	existing, err := s.Position(ctx, path, row)
	return existing, false, err
}

// Position returns ErrNotFound for an untracked path/row. Unpadded values are accepted.
func (s *Store) Position(ctx context.Context, path, row string) (model.TrackedPosition, error) {
	var err error
	if path, err = sceneid.PadPosition(path); err != nil {
		return model.TrackedPosition{}, err
	}
	if row, err = sceneid.PadPosition(row); err != nil {
		return model.TrackedPosition{}, err
	}
	var r positionRow
	err = s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT wrs_path, wrs_row, created_at FROM tracked_positions
		WHERE wrs_path = ? AND wrs_row = ?`), path, row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackedPosition{}, fmt.Errorf("position %s-%s: %w", path, row, ErrNotFound)
	}
	if err != nil {
		return model.TrackedPosition{}, err
	}
	return r.position()
}

// Positions lists every tracked position ordered by path and row.
func (s *Store) Positions(ctx context.Context) ([]model.TrackedPosition, error) {
	var rows []positionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT wrs_path, wrs_row, created_at FROM tracked_positions
		ORDER BY wrs_path, wrs_row`); err != nil {
		return nil, err
	}
	positions := make([]model.TrackedPosition, 0, len(rows))
	for _, r := range rows {
		position, err := r.position()
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}
