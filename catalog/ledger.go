package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venicegeo/geojson-go/geojson"

	"github.com/venicegeo/bf-scene-catalog/model"
)

// ErrClaimLost is returned when completing a derived product whose pending
// claim is no longer held.
var ErrClaimLost = errors.New("derived product claim lost")

type derivedRow struct {
	SourceImageName string         `db:"source_image_name"`
	State           string         `db:"state"`
	ClaimedAt       string         `db:"claimed_at"`
	OutputPath      sql.NullString `db:"output_path"`
	Footprint       sql.NullString `db:"footprint"`
	SourceDate      sql.NullString `db:"source_date"`
	ArtifactURL     sql.NullString `db:"artifact_url"`
	CompletedAt     sql.NullString `db:"completed_at"`
}

func (r derivedRow) record() (model.DerivedProductRecord, error) {
	record := model.DerivedProductRecord{
		SourceImageName: r.SourceImageName,
		State:           model.DerivedState(r.State),
		OutputPath:      r.OutputPath.String,
		ArtifactURL:     r.ArtifactURL.String,
	}
	var err error
	if record.ClaimedAt, err = model.ParseCatalogTime(r.ClaimedAt); err != nil {
		return record, err
	}
	if r.SourceDate.Valid && r.SourceDate.String != "" {
		if record.SourceDate, err = model.ParseCatalogTime(r.SourceDate.String); err != nil {
			return record, err
		}
	}
	if r.CompletedAt.Valid && r.CompletedAt.String != "" {
		completedAt, err := model.ParseCatalogTime(r.CompletedAt.String)
		if err != nil {
			return record, err
		}
		record.CompletedAt = &completedAt
	}
	if r.Footprint.Valid && r.Footprint.String != "" {
		if record.Footprint, err = geojson.PolygonFromBytes([]byte(r.Footprint.String)); err != nil {
			return record, err
		}
	}
	return record, nil
}

// ClaimDerived atomically claims the right to generate the derived product of
// an image. Exactly one concurrent caller gets true. A pending claim older
// than lease may be taken over; a completed record is never claimed again.
func (s *Store) ClaimDerived(ctx context.Context, imageName string, lease time.Duration) (bool, error) {
	now := s.timestamp()
	cutoff := now.Add(-lease)
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO derived_products (source_image_name, state, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source_image_name) DO UPDATE SET claimed_at = excluded.claimed_at
		WHERE derived_products.state = ? AND derived_products.claimed_at < ?`),
		imageName, string(model.DerivedPending), model.FormatTimestamp(now),
		string(model.DerivedPending), model.FormatTimestamp(cutoff))
	if err != nil {
		return false, fmt.Errorf("claiming derived product of %s: %w", imageName, err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return claimed == 1, nil
}

// CompleteDerived records the generated artifact of a claimed image.
func (s *Store) CompleteDerived(ctx context.Context, record model.DerivedProductRecord) error {
	var footprint sql.NullString
	if record.Footprint != nil {
		encoded, err := json.Marshal(record.Footprint)
		if err != nil {
			return err
		}
		footprint = sql.NullString{String: string(encoded), Valid: true}
	}
	var sourceDate sql.NullString
	if !record.SourceDate.IsZero() {
		sourceDate = sql.NullString{String: record.SourceDate.UTC().Format(model.DateLayout), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE derived_products
		SET state = ?, output_path = ?, footprint = ?, source_date = ?, artifact_url = ?, completed_at = ?
		WHERE source_image_name = ? AND state = ?`),
		string(model.DerivedComplete), record.OutputPath, footprint, sourceDate, record.ArtifactURL,
		model.FormatTimestamp(s.timestamp()),
		record.SourceImageName, string(model.DerivedPending))
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("completing %s: %w", record.SourceImageName, ErrClaimLost)
	}
	return nil
}

// ReleaseDerived drops a pending claim so the image can be retried.
func (s *Store) ReleaseDerived(ctx context.Context, imageName string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM derived_products WHERE source_image_name = ? AND state = ?`),
		imageName, string(model.DerivedPending))
	return err
}

// DerivedFor returns the ledger entry of an image, or ErrNotFound.
func (s *Store) DerivedFor(ctx context.Context, imageName string) (model.DerivedProductRecord, error) {
	var row derivedRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT source_image_name, state, claimed_at, output_path,
		footprint, source_date, artifact_url, completed_at
		FROM derived_products WHERE source_image_name = ?`), imageName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DerivedProductRecord{}, fmt.Errorf("derived product of %s: %w", imageName, ErrNotFound)
	}
	if err != nil {
		return model.DerivedProductRecord{}, err
	}
	return row.record()
}

// CountDerived returns the number of completed ledger entries.
func (s *Store) CountDerived(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM derived_products WHERE state = ?`), string(model.DerivedComplete))
	return count, err
}
