package migration

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up00001, Down00001)
}

//Up00001 creates the scenes and images tables.
//Dates are kept as ISO text so the same schema runs on postgres and sqlite.
func Up00001(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE scenes
		(
			name text NOT NULL,
			wrs_path char(3) NOT NULL,
			wrs_row char(3) NOT NULL,
			satellite char(3) NOT NULL,
			acquisition_date text NOT NULL,
			cloud_rate real,
			status text NOT NULL,
			geom text,
			imported_at text NOT NULL,
			CONSTRAINT scenes_pk_name PRIMARY KEY (name)
		)`,
		`CREATE INDEX idx_scenes_position ON scenes (wrs_path, wrs_row, acquisition_date)`,
		`CREATE TABLE images
		(
			name text NOT NULL,
			scene_name text NOT NULL REFERENCES scenes (name),
			CONSTRAINT images_pk_name PRIMARY KEY (name)
		)`,
		`CREATE INDEX idx_images_scene ON images (scene_name)`,
	)
}

//Down00001 drops the scenes and images tables.
func Down00001(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`DROP TABLE IF EXISTS images`,
		`DROP TABLE IF EXISTS scenes`,
	)
}
