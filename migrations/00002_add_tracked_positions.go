package migration

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up00002, Down00002)
}

// Up00002 adds the path/row pairs monitored for new scenes
func Up00002(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `CREATE TABLE tracked_positions
		(
			wrs_path char(3) NOT NULL,
			wrs_row char(3) NOT NULL,
			created_at text NOT NULL,
			CONSTRAINT tracked_positions_pk PRIMARY KEY (wrs_path, wrs_row)
		)`)
}

// Down00002 undoes the effects of Up00002
func Down00002(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx, `DROP TABLE IF EXISTS tracked_positions`)
}
