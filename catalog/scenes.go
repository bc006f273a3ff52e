package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/venicegeo/geojson-go/geojson"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

const sceneColumns = `name, wrs_path, wrs_row, satellite, acquisition_date, cloud_rate, status, geom, imported_at`

const insertSceneSQL = `INSERT INTO scenes (` + sceneColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type sceneRow struct {
	Name            string          `db:"name"`
	Path            string          `db:"wrs_path"`
	Row             string          `db:"wrs_row"`
	Satellite       string          `db:"satellite"`
	AcquisitionDate string          `db:"acquisition_date"`
	CloudRate       sql.NullFloat64 `db:"cloud_rate"`
	Status          string          `db:"status"`
	Geom            sql.NullString  `db:"geom"`
	ImportedAt      string          `db:"imported_at"`
}

func (r sceneRow) scene() (model.Scene, error) {
	scene := model.Scene{
		Name:      r.Name,
		Path:      r.Path,
		Row:       r.Row,
		Satellite: r.Satellite,
		Status:    model.SceneStatus(r.Status),
	}
	var err error
	if scene.Date, err = model.ParseCatalogTime(r.AcquisitionDate); err != nil {
		return model.Scene{}, fmt.Errorf("scene %s: %w", r.Name, err)
	}
	if scene.ImportedAt, err = model.ParseCatalogTime(r.ImportedAt); err != nil {
		return model.Scene{}, fmt.Errorf("scene %s: %w", r.Name, err)
	}
	if r.CloudRate.Valid {
		cloudRate := r.CloudRate.Float64
		scene.CloudRate = &cloudRate
	}
	if r.Geom.Valid && r.Geom.String != "" {
		if scene.Geom, err = geojson.PolygonFromBytes([]byte(r.Geom.String)); err != nil {
			return model.Scene{}, fmt.Errorf("scene %s geometry: %w", r.Name, err)
		}
	}
	return scene, nil
}

// prepareScene validates the scene against its identifier and fills defaults.
func (s *Store) prepareScene(scene model.Scene) (model.Scene, []interface{}, error) {
	id, err := sceneid.Parse(scene.Name)
	if err != nil {
		return scene, nil, err
	}
	if scene.Path == "" {
		scene.Path = id.Path
	}
	if scene.Row == "" {
		scene.Row = id.Row
	}
	if scene.Satellite == "" {
		scene.Satellite = id.Satellite
	}
	if scene.Date.IsZero() {
		scene.Date = id.Date()
	}
	scene.Date = model.Day(scene.Date)
	if id.Path != scene.Path || id.Row != scene.Row || id.Satellite != scene.Satellite || !id.Date().Equal(scene.Date) {
		return scene, nil, fmt.Errorf("%w: scene %s does not match %s %s-%s %s",
			sceneid.ErrMalformedIdentifier, scene.Name, scene.Satellite, scene.Path, scene.Row, scene.Date.Format(model.DateLayout))
	}
	if scene.Status == "" {
		scene.Status = model.StatusDownloading
	}
	if !scene.Status.Valid() {
		return scene, nil, fmt.Errorf("scene %s: unknown status %q", scene.Name, scene.Status)
	}
	if scene.ImportedAt.IsZero() {
		scene.ImportedAt = s.timestamp()
	}
	scene.ImportedAt = scene.ImportedAt.UTC()

	var cloudRate sql.NullFloat64
	if scene.CloudRate != nil {
		cloudRate = sql.NullFloat64{Float64: *scene.CloudRate, Valid: true}
	}
	var geom sql.NullString
	if scene.Geom != nil {
		encoded, err := json.Marshal(scene.Geom)
		if err != nil {
			return scene, nil, err
		}
		geom = sql.NullString{String: string(encoded), Valid: true}
	}

	args := []interface{}{
		scene.Name, scene.Path, scene.Row, scene.Satellite,
		scene.Date.Format(model.DateLayout), cloudRate, string(scene.Status), geom,
		model.FormatTimestamp(scene.ImportedAt),
	}
	return scene, args, nil
}

// CreateScene inserts the scene unless one with the same name exists, in
// which case the stored scene is returned with created == false.
func (s *Store) CreateScene(ctx context.Context, scene model.Scene) (model.Scene, bool, error) {
	scene, args, err := s.prepareScene(scene)
	if err != nil {
		return model.Scene{}, false, err
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(insertSceneSQL+` ON CONFLICT (name) DO NOTHING`), args...)
	if err != nil {
		return model.Scene{}, false, fmt.Errorf("creating scene %s: %w", scene.Name, err)
	}
	if inserted, err := result.RowsAffected(); err != nil {
		return model.Scene{}, false, err
	} else if inserted == 1 {
		return scene, true, nil
	}

	existing, err := s.SceneByName(ctx, scene.Name)
	if err != nil {
		return model.Scene{}, false, err
	}
	return existing, false, nil
}

// InsertScene is a strict insert: a duplicate name is ErrCatalogConflict.
func (s *Store) InsertScene(ctx context.Context, scene model.Scene) error {
	scene, args, err := s.prepareScene(scene)
	if err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, s.db.Rebind(insertSceneSQL), args...); err != nil {
		return conflict(err, "scene %s already exists", scene.Name)
	}
	return nil
}

// SceneByName returns ErrNotFound when the scene does not exist.
func (s *Store) SceneByName(ctx context.Context, name string) (model.Scene, error) {
	var row sceneRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+sceneColumns+` FROM scenes WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Scene{}, fmt.Errorf("scene %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return model.Scene{}, err
	}
	return row.scene()
}

// SceneExists reports whether a scene with the name is stored.
func (s *Store) SceneExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM scenes WHERE name = ?`), name)
	return count > 0, err
}

// LatestSceneFor returns the most recent scene of a position, or nil if the
// position has no scenes yet.
func (s *Store) LatestSceneFor(ctx context.Context, path, row string) (*model.Scene, error) {
	var r sceneRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+sceneColumns+` FROM scenes
		WHERE wrs_path = ? AND wrs_row = ?
		ORDER BY acquisition_date DESC, name DESC
		LIMIT 1`), path, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	scene, err := r.scene()
	if err != nil {
		return nil, err
	}
	return &scene, nil
}

// ScenesFor lists the scenes of a position, newest first.
func (s *Store) ScenesFor(ctx context.Context, path, row string) ([]model.Scene, error) {
	var rows []sceneRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+sceneColumns+` FROM scenes
		WHERE wrs_path = ? AND wrs_row = ?
		ORDER BY acquisition_date DESC, name DESC`), path, row)
	if err != nil {
		return nil, err
	}
	scenes := make([]model.Scene, 0, len(rows))
	for _, r := range rows {
		scene, err := r.scene()
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// SetSceneStatus moves a scene to a new status.
func (s *Store) SetSceneStatus(ctx context.Context, name string, status model.SceneStatus) error {
	if !status.Valid() {
		return fmt.Errorf("scene %s: unknown status %q", name, status)
	}
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE scenes SET status = ? WHERE name = ?`), string(status), name)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("scene %s: %w", name, ErrNotFound)
	}
	return nil
}
