package migration

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up00003, Down00003)
}

//Up00003 adds the derived product ledger. A row is claimed as pending before the
//tiler runs and marked complete afterwards; one row per source image.
func Up00003(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `CREATE TABLE derived_products
		(
			source_image_name text NOT NULL,
			state text NOT NULL,
			claimed_at text NOT NULL,
			output_path text,
			footprint text,
			source_date text,
			artifact_url text,
			completed_at text,
			CONSTRAINT derived_products_pk PRIMARY KEY (source_image_name)
		)`)
}

//Down00003 removes the ledger.
func Down00003(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `DROP TABLE IF EXISTS derived_products`)
}
